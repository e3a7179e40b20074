package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pricescout/backend/internal/domain"
)

// Defaults applied when a provider has no explicit limit
const (
	defaultRateWindow = 60 * time.Second
	defaultRateLimit  = 20
)

// RateLimit is the window size and request budget of one provider
type RateLimit struct {
	Window time.Duration
	Limit  int
}

// RateStatus is a snapshot of a provider's current window
type RateStatus struct {
	ProviderID  string        `json:"providerId"`
	WindowStart time.Time     `json:"windowStart"`
	Count       int           `json:"count"`
	Limit       int           `json:"limit"`
	Window      time.Duration `json:"window"`
	Remaining   int           `json:"remaining"`
}

// RateLimiter counts requests per provider in fixed windows that roll over
// lazily. TryAcquire is a pure query; RecordUse is called after a request is
// actually issued. Each provider has its own lock so unrelated providers
// never contend.
type RateLimiter struct {
	store    domain.RateUsageStore
	limits   map[string]RateLimit
	fallback RateLimit
	locks    sync.Map // provider id -> *sync.Mutex
	now      func() time.Time
}

// NewRateLimiter creates a limiter backed by store. Providers missing from
// limits use fallback; a zero fallback uses 20 requests per 60s.
func NewRateLimiter(store domain.RateUsageStore, limits map[string]RateLimit, fallback RateLimit) *RateLimiter {
	if fallback.Window <= 0 {
		fallback.Window = defaultRateWindow
	}
	if fallback.Limit <= 0 {
		fallback.Limit = defaultRateLimit
	}
	copied := make(map[string]RateLimit, len(limits))
	for id, l := range limits {
		copied[id] = l
	}
	return &RateLimiter{
		store:    store,
		limits:   copied,
		fallback: fallback,
		now:      time.Now,
	}
}

// TryAcquire reports whether providerID may be tried now. It never consumes quota.
func (r *RateLimiter) TryAcquire(ctx context.Context, providerID string) (bool, error) {
	mu := r.lock(providerID)
	mu.Lock()
	defer mu.Unlock()

	limit := r.limitFor(providerID)
	window, err := r.current(ctx, providerID, limit)
	if err != nil {
		return false, err
	}
	return window.Count < limit.Limit, nil
}

// RecordUse counts one issued request against providerID's current window
func (r *RateLimiter) RecordUse(ctx context.Context, providerID string) error {
	mu := r.lock(providerID)
	mu.Lock()
	defer mu.Unlock()

	limit := r.limitFor(providerID)
	window, err := r.current(ctx, providerID, limit)
	if err != nil {
		return err
	}
	window.Count++

	// Records outlive their window so a slow reader still sees the rollover point
	if err := r.store.Save(ctx, window, 2*limit.Window); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRateStoreUnavailable, err)
	}
	return nil
}

// Status returns the current window of providerID
func (r *RateLimiter) Status(ctx context.Context, providerID string) (RateStatus, error) {
	mu := r.lock(providerID)
	mu.Lock()
	defer mu.Unlock()

	limit := r.limitFor(providerID)
	window, err := r.current(ctx, providerID, limit)
	if err != nil {
		return RateStatus{}, err
	}
	return RateStatus{
		ProviderID:  providerID,
		WindowStart: window.WindowStart,
		Count:       window.Count,
		Limit:       limit.Limit,
		Window:      limit.Window,
		Remaining:   max(limit.Limit-window.Count, 0),
	}, nil
}

// current loads the provider's window, starting a fresh one when the stored
// window has ended. The fresh window is persisted on the next RecordUse.
func (r *RateLimiter) current(ctx context.Context, providerID string, limit RateLimit) (domain.RateWindow, error) {
	now := r.now()
	window, found, err := r.store.Load(ctx, providerID)
	if err != nil {
		return domain.RateWindow{}, fmt.Errorf("%w: %v", domain.ErrRateStoreUnavailable, err)
	}
	if !found || !now.Before(window.WindowStart.Add(limit.Window)) {
		return domain.RateWindow{ProviderID: providerID, WindowStart: now}, nil
	}
	return window, nil
}

func (r *RateLimiter) limitFor(providerID string) RateLimit {
	if l, ok := r.limits[providerID]; ok && l.Window > 0 && l.Limit > 0 {
		return l
	}
	return r.fallback
}

func (r *RateLimiter) lock(providerID string) *sync.Mutex {
	mu, _ := r.locks.LoadOrStore(providerID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
