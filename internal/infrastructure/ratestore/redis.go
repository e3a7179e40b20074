package ratestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pricescout/backend/internal/domain"
)

const defaultKeyPrefix = "pricescout:rate:"

// RedisStore shares rate windows between server instances.
// Updates are last-writer-wins; the limiter serializes writers per process only.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store over client
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: defaultKeyPrefix}
}

// Load returns the shared window of providerID and whether one exists
func (s *RedisStore) Load(ctx context.Context, providerID string) (domain.RateWindow, bool, error) {
	raw, err := s.client.Get(ctx, s.prefix+providerID).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.RateWindow{}, false, nil
	}
	if err != nil {
		return domain.RateWindow{}, false, fmt.Errorf("%w: %v", domain.ErrRateStoreUnavailable, err)
	}

	var w domain.RateWindow
	if err := json.Unmarshal(raw, &w); err != nil {
		// An unreadable window starts over
		return domain.RateWindow{}, false, nil
	}
	return w, true, nil
}

// Save replaces the shared window of window.ProviderID, expiring it after ttl
func (s *RedisStore) Save(ctx context.Context, window domain.RateWindow, ttl time.Duration) error {
	raw, err := json.Marshal(window)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.prefix+window.ProviderID, raw, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRateStoreUnavailable, err)
	}
	return nil
}
