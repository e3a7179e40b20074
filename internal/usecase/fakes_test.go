package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pricescout/backend/internal/domain"
)

// fakeClock is a settable time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeCacheRepository is an in-memory domain.CacheRepository
type fakeCacheRepository struct {
	mu      sync.Mutex
	records map[string]domain.CacheRecord
	err     error
	sets    int
	deletes int
}

func newFakeCacheRepository() *fakeCacheRepository {
	return &fakeCacheRepository{records: make(map[string]domain.CacheRecord)}
}

func (r *fakeCacheRepository) Get(ctx context.Context, fingerprint string) (*domain.CacheRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	rec, ok := r.records[fingerprint]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return &rec, nil
}

func (r *fakeCacheRepository) Set(ctx context.Context, record *domain.CacheRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sets++
	r.records[record.Fingerprint] = *record
	return nil
}

func (r *fakeCacheRepository) Delete(ctx context.Context, fingerprint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.deletes++
	delete(r.records, fingerprint)
	return nil
}

func (r *fakeCacheRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	var n int64
	for fp, rec := range r.records {
		if rec.Expired(now) {
			delete(r.records, fp)
			n++
		}
	}
	return n, nil
}

func (r *fakeCacheRepository) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// fakeRateStore is an in-memory domain.RateUsageStore
type fakeRateStore struct {
	mu      sync.Mutex
	windows map[string]domain.RateWindow
	err     error
}

func newFakeRateStore() *fakeRateStore {
	return &fakeRateStore{windows: make(map[string]domain.RateWindow)}
}

func (s *fakeRateStore) Load(ctx context.Context, providerID string) (domain.RateWindow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return domain.RateWindow{}, false, s.err
	}
	w, ok := s.windows[providerID]
	return w, ok, nil
}

func (s *fakeRateStore) Save(ctx context.Context, window domain.RateWindow, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.windows[window.ProviderID] = window
	return nil
}

// fakeProvider is a scripted domain.SearchProvider
type fakeProvider struct {
	name    string
	calls   atomic.Int32
	attempt func(ctx context.Context, call int, query string) (*domain.ProviderResult, error)
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Attempt(ctx context.Context, query string, queryType domain.QueryType) (*domain.ProviderResult, error) {
	call := int(p.calls.Add(1))
	return p.attempt(ctx, call, query)
}

func succeedingProvider(name string, candidates ...domain.Candidate) *fakeProvider {
	return &fakeProvider{
		name: name,
		attempt: func(ctx context.Context, call int, query string) (*domain.ProviderResult, error) {
			return &domain.ProviderResult{Candidates: candidates}, nil
		},
	}
}

func failingProvider(name string, err error) *fakeProvider {
	return &fakeProvider{
		name: name,
		attempt: func(ctx context.Context, call int, query string) (*domain.ProviderResult, error) {
			return nil, err
		},
	}
}

// fakeFetcher serves canned pages by URL
type fakeFetcher struct {
	pages map[string]string
	calls atomic.Int32
}

func (f *fakeFetcher) FetchPage(ctx context.Context, pageURL string) (string, error) {
	f.calls.Add(1)
	page, ok := f.pages[pageURL]
	if !ok {
		return "", domain.ErrPageDisallowed
	}
	return page, nil
}

// recordingMetrics counts events by label
type recordingMetrics struct {
	NopMetrics
	mu      sync.Mutex
	lookups map[string]int
	skipped map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{lookups: make(map[string]int), skipped: make(map[string]int)}
}

func (m *recordingMetrics) CacheLookup(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups[outcome]++
}

func (m *recordingMetrics) ProviderSkipped(provider, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipped[provider+":"+reason]++
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }
