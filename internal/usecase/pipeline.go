package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/pricescout/backend/internal/domain"
)

// Response sources
const (
	SourceLive  = "live"
	SourceCache = "cache"
)

// Enrichment defaults
const (
	defaultEnrichTimeout     = 8 * time.Second
	defaultEnrichConcurrency = 4
)

// PipelineConfig holds configuration for the acquisition pipeline
type PipelineConfig struct {
	CacheTTL time.Duration
	// EnrichPages is the number of candidate pages fetched when the search
	// snippet carried no price. Zero disables enrichment.
	EnrichPages   int
	EnrichTimeout time.Duration
}

// PipelineDeps are the collaborators of the acquisition pipeline.
// Fetcher and Metrics are optional.
type PipelineDeps struct {
	Normalizer   *NameNormalizer
	Cache        *CacheStore
	Orchestrator *FallbackOrchestrator
	Extractor    *PriceExtractor
	Scorer       *RelevanceScorer
	Fetcher      domain.PageFetcher
	Metrics      domain.Metrics
}

// AcquisitionPipeline answers product queries with ranked price observations.
// Flow: normalize -> cache -> single-flight fetch -> extract -> rank -> cache -> return
type AcquisitionPipeline struct {
	normalizer   *NameNormalizer
	cache        *CacheStore
	orchestrator *FallbackOrchestrator
	extractor    *PriceExtractor
	scorer       *RelevanceScorer
	fetcher      domain.PageFetcher
	metrics      domain.Metrics
	config       PipelineConfig
}

// NewAcquisitionPipeline creates a pipeline from its collaborators
func NewAcquisitionPipeline(deps PipelineDeps, config PipelineConfig) *AcquisitionPipeline {
	if config.EnrichTimeout <= 0 {
		config.EnrichTimeout = defaultEnrichTimeout
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = deps.Cache.TTL()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NopMetrics{}
	}
	scorer := deps.Scorer
	if scorer == nil {
		scorer = NewRelevanceScorer(deps.Normalizer, RelevanceConfig{})
	}

	return &AcquisitionPipeline{
		normalizer:   deps.Normalizer,
		cache:        deps.Cache,
		orchestrator: deps.Orchestrator,
		extractor:    deps.Extractor,
		scorer:       scorer,
		fetcher:      deps.Fetcher,
		metrics:      metrics,
		config:       config,
	}
}

// Fingerprint derives the cache key of a normalized key and query type
func Fingerprint(key string, queryType domain.QueryType) string {
	sum := sha256.Sum256([]byte(key + "|" + string(queryType)))
	return hex.EncodeToString(sum[:])
}

// Search runs the pipeline for one request. Exhausted providers are reported
// through SearchResponse.Exhausted, not as an error.
func (p *AcquisitionPipeline) Search(ctx context.Context, request *domain.SearchRequest) (*domain.SearchResponse, error) {
	if request == nil || strings.TrimSpace(request.Query) == "" {
		return nil, domain.ErrInvalidRequest
	}

	queryType, err := domain.ParseQueryType(string(request.Type))
	if err != nil {
		return nil, err
	}
	if len(request.Providers) > 0 {
		if err := p.orchestrator.ValidateOrder(request.Providers); err != nil {
			return nil, err
		}
	}

	product := p.normalizer.Normalize(request.Query)
	if product.Key == "" {
		return nil, domain.ErrInvalidRequest
	}
	fingerprint := Fingerprint(product.Key, queryType)

	useCache := true
	if !request.NoCache {
		entry, err := p.cache.Get(ctx, fingerprint)
		switch {
		case err == nil:
			p.metrics.SearchCompleted(SourceCache, false)
			return p.cachedResponse(request.Query, product, fingerprint, entry), nil
		case errors.Is(err, domain.ErrCacheUnavailable):
			log.Warn().Err(err).Str("fingerprint", fingerprint).Msg("cache unavailable, fetching directly")
			useCache = false
		}
	}

	resp, shared, err := p.cache.Load(ctx, fingerprint, func(ctx context.Context) (*domain.SearchResponse, error) {
		return p.fetch(ctx, request, product, fingerprint, queryType, useCache)
	})
	if err != nil {
		return nil, err
	}
	resp.Query = request.Query

	if shared {
		log.Debug().Str("fingerprint", fingerprint).Msg("joined in-flight fetch")
	}
	p.metrics.SearchCompleted(resp.Source, resp.Exhausted)
	return resp, nil
}

// fetch is the single-flight body: re-check the cache, fan out to providers,
// extract, rank and store.
func (p *AcquisitionPipeline) fetch(
	ctx context.Context,
	request *domain.SearchRequest,
	product domain.NormalizedProduct,
	fingerprint string,
	queryType domain.QueryType,
	useCache bool,
) (*domain.SearchResponse, error) {
	// A flight that finished just before this one started may have filled the cache
	if useCache && !request.NoCache {
		if entry, err := p.cache.Get(ctx, fingerprint); err == nil {
			return p.cachedResponse(request.Query, product, fingerprint, entry), nil
		}
	}

	resp := &domain.SearchResponse{
		Query:         request.Query,
		NormalizedKey: product.Key,
		Fingerprint:   fingerprint,
		Type:          queryType,
		Observations:  []domain.PriceObservation{},
		Source:        SourceLive,
	}

	result, err := p.orchestrator.Fetch(ctx, p.normalizer.SearchText(request.Query), queryType, request.Providers)
	if err != nil {
		if errors.Is(err, domain.ErrProvidersExhausted) {
			resp.Exhausted = true
			return resp, nil
		}
		return nil, err
	}
	resp.Provider = result.Provider

	observations := p.extract(ctx, result.Candidates)
	resp.Observations = p.scorer.Rank(product, observations)
	resp.Summary = Summarize(resp.Observations)

	if len(resp.Observations) == 0 || !useCache {
		return resp, nil
	}

	entry, err := p.cache.Put(ctx, fingerprint, domain.CacheEntry{
		Key:          product.Key,
		QueryType:    queryType,
		Provider:     result.Provider,
		Observations: resp.Observations,
	}, p.config.CacheTTL)
	if err != nil {
		log.Warn().Err(err).Str("fingerprint", fingerprint).Msg("failed to store search result")
		return resp, nil
	}
	resp.CachedAt = &entry.CreatedAt
	resp.ExpiresAt = &entry.ExpiresAt
	return resp, nil
}

// extract runs the extractor over every candidate and enriches candidates
// that yielded nothing by fetching their pages
func (p *AcquisitionPipeline) extract(ctx context.Context, candidates []domain.Candidate) []domain.PriceObservation {
	var observations []domain.PriceObservation
	var bare []domain.Candidate

	for _, c := range candidates {
		found := p.extractor.Extract(candidateFragment(c))
		if len(found) == 0 {
			if c.URL != "" {
				bare = append(bare, c)
			}
			continue
		}
		observations = append(observations, found...)
	}

	observations = append(observations, p.enrich(ctx, bare)...)

	counts := make(map[domain.Strategy]int)
	for _, obs := range observations {
		counts[obs.Strategy]++
	}
	for strategy, n := range counts {
		p.metrics.ObservationsExtracted(strategy, n)
	}
	return observations
}

// enrich fetches up to EnrichPages candidate pages and extracts from their markup.
// Failures are logged and skipped.
func (p *AcquisitionPipeline) enrich(ctx context.Context, candidates []domain.Candidate) []domain.PriceObservation {
	if p.fetcher == nil || p.config.EnrichPages <= 0 || len(candidates) == 0 {
		return nil
	}
	if len(candidates) > p.config.EnrichPages {
		candidates = candidates[:p.config.EnrichPages]
	}

	results := make([][]domain.PriceObservation, len(candidates))
	var g errgroup.Group
	g.SetLimit(defaultEnrichConcurrency)
	for i, c := range candidates {
		g.Go(func() error {
			pageCtx, cancel := context.WithTimeout(ctx, p.config.EnrichTimeout)
			defer cancel()

			markup, err := p.fetcher.FetchPage(pageCtx, c.URL)
			if err != nil {
				log.Warn().Err(err).Str("url", c.URL).Msg("page enrichment failed")
				return nil
			}
			results[i] = p.extractor.Extract(domain.Fragment{
				Markup:    markup,
				SourceURL: c.URL,
				StoreName: c.Store,
				Title:     c.Title,
			})
			return nil
		})
	}
	_ = g.Wait()

	var observations []domain.PriceObservation
	for _, r := range results {
		observations = append(observations, r...)
	}
	return observations
}

// Invalidate drops the cached result of query and returns its fingerprint
func (p *AcquisitionPipeline) Invalidate(ctx context.Context, query string, queryType domain.QueryType) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", domain.ErrInvalidRequest
	}
	qt, err := domain.ParseQueryType(string(queryType))
	if err != nil {
		return "", err
	}
	key := p.normalizer.Key(query)
	if key == "" {
		return "", domain.ErrInvalidRequest
	}

	fingerprint := Fingerprint(key, qt)
	if err := p.cache.Invalidate(ctx, fingerprint); err != nil {
		return fingerprint, err
	}
	log.Info().Str("fingerprint", fingerprint).Str("key", key).Msg("cache entry invalidated")
	return fingerprint, nil
}

// ProviderStats returns the monitoring view of every provider
func (p *AcquisitionPipeline) ProviderStats(ctx context.Context) []ProviderStats {
	return p.orchestrator.Stats(ctx)
}

func (p *AcquisitionPipeline) cachedResponse(
	query string,
	product domain.NormalizedProduct,
	fingerprint string,
	entry *domain.CacheEntry,
) *domain.SearchResponse {
	cachedAt := entry.CreatedAt
	expiresAt := entry.ExpiresAt
	return &domain.SearchResponse{
		Query:         query,
		NormalizedKey: product.Key,
		Fingerprint:   fingerprint,
		Type:          entry.QueryType,
		Observations:  entry.Observations,
		Summary:       Summarize(entry.Observations),
		Provider:      entry.Provider,
		Source:        SourceCache,
		CachedAt:      &cachedAt,
		ExpiresAt:     &expiresAt,
	}
}

// candidateFragment joins the text fields of a search hit into one fragment
func candidateFragment(c domain.Candidate) domain.Fragment {
	parts := make([]string, 0, 3)
	for _, s := range []string{c.PriceText, c.Title, c.Snippet} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return domain.Fragment{
		Text:      strings.Join(parts, " | "),
		SourceURL: c.URL,
		StoreName: c.Store,
		Title:     c.Title,
	}
}
