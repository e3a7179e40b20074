package cache

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/pricescout/backend/internal/domain"
)

// shardCount must stay a power of two
const shardCount = 32

type memoryShard struct {
	mu   sync.RWMutex
	data map[string]domain.CacheRecord
}

// MemoryRepository is a thread-safe in-process cache repository. Keys are
// spread over independently locked shards so writers to different
// fingerprints do not contend. It never removes entries on its own; expired
// rows go through DeleteExpired.
type MemoryRepository struct {
	shards [shardCount]*memoryShard
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	c := &MemoryRepository{}
	for i := range c.shards {
		c.shards[i] = &memoryShard{data: make(map[string]domain.CacheRecord)}
	}
	return c
}

func shardIndex(fingerprint string) uint64 {
	return xxhash.Sum64String(fingerprint) & (shardCount - 1)
}

func (c *MemoryRepository) shard(fingerprint string) *memoryShard {
	return c.shards[shardIndex(fingerprint)]
}

// Get returns a copy of the record stored under fingerprint
func (c *MemoryRepository) Get(ctx context.Context, fingerprint string) (*domain.CacheRecord, error) {
	s := c.shard(fingerprint)
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.data[fingerprint]
	if !exists {
		return nil, domain.ErrCacheMiss
	}

	record.Payload = append([]byte(nil), record.Payload...)
	return &record, nil
}

// Set upserts record; the payload is copied so callers may reuse their buffer
func (c *MemoryRepository) Set(ctx context.Context, record *domain.CacheRecord) error {
	stored := *record
	stored.Payload = append([]byte(nil), record.Payload...)

	s := c.shard(record.Fingerprint)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[record.Fingerprint] = stored
	return nil
}

// Delete removes fingerprint; deleting an absent key is not an error
func (c *MemoryRepository) Delete(ctx context.Context, fingerprint string) error {
	s := c.shard(fingerprint)
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, fingerprint)
	return nil
}

// DeleteExpired removes every record expired at now, one shard at a time
func (c *MemoryRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var removed int64
	for _, s := range c.shards {
		s.mu.Lock()
		for key, record := range s.data {
			if record.Expired(now) {
				delete(s.data, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed, nil
}

// Size returns the current number of records, expired ones included
func (c *MemoryRepository) Size() int {
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.data)
		s.mu.RUnlock()
	}
	return n
}

// Clear removes all records
func (c *MemoryRepository) Clear() {
	for _, s := range c.shards {
		s.mu.Lock()
		s.data = make(map[string]domain.CacheRecord)
		s.mu.Unlock()
	}
}
