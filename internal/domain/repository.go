package domain

import (
	"context"
	"time"
)

// CacheRecord is the persisted form of a cache entry.
// Stores keep one row per fingerprint and index ExpiresAt for sweeps.
type CacheRecord struct {
	Fingerprint string
	QueryType   QueryType
	Payload     []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the record is past its expiry at now
func (r *CacheRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// CacheEntry is a decoded cache record
type CacheEntry struct {
	Key          string             `json:"key"`
	QueryType    QueryType          `json:"queryType"`
	Provider     string             `json:"provider,omitempty"`
	Observations []PriceObservation `json:"observations"`
	CreatedAt    time.Time          `json:"createdAt"`
	ExpiresAt    time.Time          `json:"expiresAt"`
}

// RateWindow counts requests issued to one provider in the current window
type RateWindow struct {
	ProviderID  string    `json:"providerId"`
	WindowStart time.Time `json:"windowStart"`
	Count       int       `json:"count"`
}

// CacheRepository defines the interface for cache persistence.
// Get returns ErrCacheMiss when the fingerprint is unknown and an error
// wrapping ErrCacheUnavailable when the backend cannot be reached.
type CacheRepository interface {
	Get(ctx context.Context, fingerprint string) (*CacheRecord, error)
	Set(ctx context.Context, record *CacheRecord) error
	Delete(ctx context.Context, fingerprint string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// RateUsageStore persists rate windows per provider
type RateUsageStore interface {
	Load(ctx context.Context, providerID string) (RateWindow, bool, error)
	Save(ctx context.Context, window RateWindow, ttl time.Duration) error
}

// SearchProvider defines one search backend
type SearchProvider interface {
	// Name returns the provider identifier used in the priority order (e.g. "duckduckgo").
	Name() string
	// Attempt issues a single search request.
	Attempt(ctx context.Context, query string, queryType QueryType) (*ProviderResult, error)
}

// PageFetcher downloads a product page for enrichment
type PageFetcher interface {
	FetchPage(ctx context.Context, pageURL string) (string, error)
}

// Metrics records pipeline events
type Metrics interface {
	ProviderAttempt(provider, outcome string, duration time.Duration)
	ProviderSkipped(provider, reason string)
	CacheLookup(outcome string)
	ObservationsExtracted(strategy Strategy, count int)
	SearchCompleted(source string, exhausted bool)
}
