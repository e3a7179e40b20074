package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pricescout/backend/config"
	"github.com/pricescout/backend/internal/domain"
	"github.com/pricescout/backend/internal/infrastructure/cache"
	"github.com/pricescout/backend/internal/infrastructure/metrics"
	"github.com/pricescout/backend/internal/infrastructure/ratestore"
	"github.com/pricescout/backend/internal/infrastructure/scrape"
	"github.com/pricescout/backend/internal/infrastructure/search"
	"github.com/pricescout/backend/internal/usecase"
)

// fallbackRate applies to providers without an explicit quota
var fallbackRate = usecase.RateLimit{Window: time.Minute, Limit: 20}

// app holds the wired services shared by every command
type app struct {
	cfg        *config.Config
	pipeline   *usecase.AcquisitionPipeline
	cache      *usecase.CacheStore
	normalizer *usecase.NameNormalizer
	extractor  *usecase.PriceExtractor
	metrics    *metrics.PrometheusMetrics // nil when disabled

	// backends in use after any fallback
	cacheBackend string
	rateBackend  string

	closers []func()
}

// newExtractor builds the parser stack, which needs no external services
func newExtractor(cfg *config.Config) *usecase.PriceExtractor {
	return usecase.NewPriceExtractor(usecase.NewPriceParser(cfg.Search.DefaultCurrency, cfg.Search.MaxAmount))
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:        cfg,
		normalizer: usecase.NewNameNormalizer(),
		extractor:  newExtractor(cfg),
	}

	var sink domain.Metrics = usecase.NopMetrics{}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewMetrics()
		sink = a.metrics
	}

	repo, err := a.newCacheRepository(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.cache = usecase.NewCacheStore(repo, cfg.Cache.TTL, sink)

	rates, err := a.newRateStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	providers, err := search.NewProviders(availableProviders(cfg), providerOptions(cfg))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build providers: %w", err)
	}

	limits := make(map[string]usecase.RateLimit, len(cfg.Providers))
	for name, p := range cfg.Providers {
		limits[name] = usecase.RateLimit{Window: p.RateWindow, Limit: p.RateLimit}
	}
	limiter := usecase.NewRateLimiter(rates, limits, fallbackRate)

	orchestrator, err := usecase.NewFallbackOrchestrator(providers, cfg.Search.ProviderOrder, limiter, sink, usecase.OrchestratorConfig{
		AttemptTimeout:     cfg.Search.AttemptTimeout,
		MaxRetries:         cfg.Search.MaxRetries,
		RetryBackoff:       cfg.Search.RetryBackoff,
		BreakerMaxFailures: uint32(cfg.Breaker.MaxFailures),
		BreakerCooldown:    cfg.Breaker.Cooldown,
		BreakerInterval:    cfg.Breaker.Interval,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}

	var fetcher domain.PageFetcher
	if cfg.Search.EnrichPages > 0 {
		fetcher = scrape.NewPageFetcher(cfg.Search.UserAgent, cfg.Search.EnrichTimeout)
	}

	a.pipeline = usecase.NewAcquisitionPipeline(usecase.PipelineDeps{
		Normalizer:   a.normalizer,
		Cache:        a.cache,
		Orchestrator: orchestrator,
		Extractor:    a.extractor,
		Scorer: usecase.NewRelevanceScorer(a.normalizer, usecase.RelevanceConfig{
			MinRelevance:        cfg.Search.MinRelevance,
			MaxObservations:     cfg.Search.MaxObservations,
			EnableFuzzyMatching: cfg.Search.FuzzyMatching,
		}),
		Fetcher: fetcher,
		Metrics: sink,
	}, usecase.PipelineConfig{
		CacheTTL:      cfg.Cache.TTL,
		EnrichPages:   cfg.Search.EnrichPages,
		EnrichTimeout: cfg.Search.EnrichTimeout,
	})

	log.Info().
		Strs("providers", cfg.Search.ProviderOrder).
		Str("cache", a.cacheBackend).
		Str("rate_store", a.rateBackend).
		Dur("cache_ttl", cfg.Cache.TTL).
		Int("enrich_pages", cfg.Search.EnrichPages).
		Bool("metrics", cfg.Metrics.Enabled).
		Msg("price pipeline ready")

	return a, nil
}

// newCacheRepository opens the configured backend. An unreachable backend
// falls back to the in-memory repository; only a malformed URL or DSN fails.
func (a *app) newCacheRepository(ctx context.Context) (domain.CacheRepository, error) {
	repo, err := a.openCacheRepository(ctx)
	switch {
	case err == nil:
		a.cacheBackend = a.cfg.Cache.Type
		return repo, nil
	case errors.Is(err, domain.ErrCacheUnavailable):
		log.Warn().Err(err).Str("cache", a.cfg.Cache.Type).Msg("cache backend unavailable, using in-memory cache")
		a.cacheBackend = "memory"
		return cache.NewMemoryRepository(), nil
	default:
		return nil, err
	}
}

func (a *app) openCacheRepository(ctx context.Context) (domain.CacheRepository, error) {
	switch a.cfg.Cache.Type {
	case "redis":
		client, err := cache.NewRedisClient(ctx, a.cfg.Cache.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect cache redis: %w", err)
		}
		a.onClose(func() { _ = client.Close() })
		return cache.NewRedisRepository(client), nil
	case "sqlite":
		repo, err := cache.NewSQLiteRepository(a.cfg.Cache.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite cache: %w", err)
		}
		a.onClose(func() { _ = repo.Close() })
		return repo, nil
	case "postgres":
		repo, err := cache.NewPostgresRepository(ctx, a.cfg.Cache.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres cache: %w", err)
		}
		a.onClose(repo.Close)
		return repo, nil
	default:
		return cache.NewMemoryRepository(), nil
	}
}

// newRateStore opens the configured rate store, falling back to process
// memory when Redis cannot be reached
func (a *app) newRateStore(ctx context.Context) (domain.RateUsageStore, error) {
	if a.cfg.RateLimit.Store != "redis" {
		a.rateBackend = "memory"
		return ratestore.NewMemoryStore(), nil
	}

	client, err := cache.NewRedisClient(ctx, a.cfg.RateRedisURL())
	if errors.Is(err, domain.ErrCacheUnavailable) {
		log.Warn().Err(err).Msg("rate store unavailable, counting rate windows in memory")
		a.rateBackend = "memory"
		return ratestore.NewMemoryStore(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("connect rate store redis: %w", err)
	}
	a.onClose(func() { _ = client.Close() })
	a.rateBackend = "redis"
	return ratestore.NewRedisStore(client), nil
}

// availableProviders lists the configured order followed by every other
// usable provider, so a request may override the order with any of them
func availableProviders(cfg *config.Config) []string {
	names := append([]string(nil), cfg.Search.ProviderOrder...)
	for _, name := range search.Names() {
		if slices.Contains(names, name) {
			continue
		}
		if name == search.NameSearXNG && cfg.Providers[name].BaseURL == "" {
			continue
		}
		names = append(names, name)
	}
	return names
}

func providerOptions(cfg *config.Config) search.Options {
	settings := make(map[string]search.ProviderSettings, len(cfg.Providers))
	for name, p := range cfg.Providers {
		settings[name] = search.ProviderSettings{
			BaseURL:           p.BaseURL,
			RequestsPerSecond: p.RequestsPerSecond,
			Burst:             p.Burst,
		}
	}
	return search.Options{
		UserAgent:  cfg.Search.UserAgent,
		NumResults: cfg.Search.NumResults,
		Region:     cfg.Search.Region,
		Country:    cfg.Search.Country,
		Language:   cfg.Search.Language,
		Providers:  settings,
	}
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases backend connections in reverse order of creation
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
