package ratestore

import (
	"context"
	"sync"
	"time"

	"github.com/pricescout/backend/internal/domain"
)

// MemoryStore keeps rate windows in process memory. Each provider's window
// is an independent sync.Map entry; callers serialize updates per provider.
// Windows are bounded by the number of providers, so the TTL is not enforced.
type MemoryStore struct {
	windows sync.Map // provider ID -> domain.RateWindow
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the stored window of providerID and whether one exists
func (s *MemoryStore) Load(ctx context.Context, providerID string) (domain.RateWindow, bool, error) {
	v, ok := s.windows.Load(providerID)
	if !ok {
		return domain.RateWindow{}, false, nil
	}
	return v.(domain.RateWindow), true, nil
}

// Save replaces the window of window.ProviderID
func (s *MemoryStore) Save(ctx context.Context, window domain.RateWindow, ttl time.Duration) error {
	s.windows.Store(window.ProviderID, window)
	return nil
}
