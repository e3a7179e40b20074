package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/pricescout/backend/internal/domain"
)

// Cache lookup outcomes reported to metrics
const (
	cacheHit         = "hit"
	cacheMiss        = "miss"
	cacheExpired     = "expired"
	cacheUnavailable = "unavailable"
)

// defaultCacheTTL is used when the store is created without a TTL
const defaultCacheTTL = 30 * time.Minute

// CacheStore maps fingerprints to stored observations with an expiry and
// collapses concurrent fetches of the same fingerprint into one.
type CacheStore struct {
	repo    domain.CacheRepository
	group   singleflight.Group
	ttl     time.Duration
	metrics domain.Metrics
	now     func() time.Time
}

// NewCacheStore creates a cache store over repo
func NewCacheStore(repo domain.CacheRepository, ttl time.Duration, metrics domain.Metrics) *CacheStore {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &CacheStore{
		repo:    repo,
		ttl:     ttl,
		metrics: metrics,
		now:     time.Now,
	}
}

// TTL returns the default time-to-live of new entries
func (c *CacheStore) TTL() time.Duration {
	return c.ttl
}

// Get returns the live entry for fingerprint. Expired entries are deleted and
// reported as ErrCacheMiss. Backend failures wrap ErrCacheUnavailable.
func (c *CacheStore) Get(ctx context.Context, fingerprint string) (*domain.CacheEntry, error) {
	record, err := c.repo.Get(ctx, fingerprint)
	if err != nil {
		if errors.Is(err, domain.ErrCacheMiss) {
			c.metrics.CacheLookup(cacheMiss)
			return nil, domain.ErrCacheMiss
		}
		c.metrics.CacheLookup(cacheUnavailable)
		return nil, unavailable(err)
	}

	if record.Expired(c.now()) {
		c.metrics.CacheLookup(cacheExpired)
		if err := c.repo.Delete(ctx, fingerprint); err != nil {
			log.Warn().Err(err).Str("fingerprint", fingerprint).Msg("failed to delete expired cache entry")
		}
		return nil, domain.ErrCacheMiss
	}

	var entry domain.CacheEntry
	if err := json.Unmarshal(record.Payload, &entry); err != nil {
		log.Warn().Err(err).Str("fingerprint", fingerprint).Msg("dropping undecodable cache entry")
		c.metrics.CacheLookup(cacheMiss)
		if err := c.repo.Delete(ctx, fingerprint); err != nil {
			log.Warn().Err(err).Str("fingerprint", fingerprint).Msg("failed to delete cache entry")
		}
		return nil, domain.ErrCacheMiss
	}
	entry.CreatedAt = record.CreatedAt
	entry.ExpiresAt = record.ExpiresAt

	c.metrics.CacheLookup(cacheHit)
	return &entry, nil
}

// Put upserts entry under fingerprint for ttl, stamping its creation and
// expiry times. A zero ttl uses the store default; a negative one is rejected.
func (c *CacheStore) Put(
	ctx context.Context,
	fingerprint string,
	entry domain.CacheEntry,
	ttl time.Duration,
) (*domain.CacheEntry, error) {
	if ttl == 0 {
		ttl = c.ttl
	}
	if ttl < 0 {
		return nil, domain.ErrInvalidTTL
	}

	now := c.now().UTC()
	entry.CreatedAt = now
	entry.ExpiresAt = now.Add(ttl)

	payload, err := json.Marshal(&entry)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache entry: %w", err)
	}

	record := &domain.CacheRecord{
		Fingerprint: fingerprint,
		QueryType:   entry.QueryType,
		Payload:     payload,
		CreatedAt:   entry.CreatedAt,
		ExpiresAt:   entry.ExpiresAt,
	}
	if err := c.repo.Set(ctx, record); err != nil {
		return nil, unavailable(err)
	}
	return &entry, nil
}

// Invalidate removes fingerprint from the cache
func (c *CacheStore) Invalidate(ctx context.Context, fingerprint string) error {
	if err := c.repo.Delete(ctx, fingerprint); err != nil {
		return unavailable(err)
	}
	return nil
}

// Load runs fetch at most once at a time per fingerprint. Callers arriving
// while a fetch is in flight wait for it and share its result. The fetch runs
// detached from the caller's cancellation so one caller leaving cannot abort
// the others. shared reports whether the result was produced for another caller.
func (c *CacheStore) Load(
	ctx context.Context,
	fingerprint string,
	fetch func(ctx context.Context) (*domain.SearchResponse, error),
) (resp *domain.SearchResponse, shared bool, err error) {
	detached := context.WithoutCancel(ctx)
	v, err, shared := c.group.Do(fingerprint, func() (any, error) {
		return fetch(detached)
	})
	if err != nil {
		return nil, shared, err
	}

	// Each caller gets its own copy of the response header
	out := *(v.(*domain.SearchResponse))
	return &out, shared, nil
}

// Sweep deletes every expired entry and returns the number removed
func (c *CacheStore) Sweep(ctx context.Context) (int64, error) {
	n, err := c.repo.DeleteExpired(ctx, c.now())
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// StartSweeper runs Sweep every interval until ctx is done
func (c *CacheStore) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := c.Sweep(ctx)
				if err != nil {
					log.Warn().Err(err).Msg("cache sweep failed")
					continue
				}
				if n > 0 {
					log.Debug().Int64("removed", n).Msg("swept expired cache entries")
				}
			}
		}
	}()
}

func unavailable(err error) error {
	if errors.Is(err, domain.ErrCacheUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
}
