package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pricescout/backend/internal/domain"
)

const defaultRedisKeyPrefix = "pricescout:cache:"

// redisRecord is the stored form of a cache record
type redisRecord struct {
	QueryType domain.QueryType `json:"queryType"`
	Payload   json.RawMessage  `json:"payload"`
	CreatedAt time.Time        `json:"createdAt"`
	ExpiresAt time.Time        `json:"expiresAt"`
}

// RedisRepository stores cache records as Redis strings. Redis expires the
// keys itself, so DeleteExpired has nothing to do.
type RedisRepository struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisRepository creates a repository over client
func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{
		client: client,
		prefix: defaultRedisKeyPrefix,
		now:    time.Now,
	}
}

// NewRedisClient parses a redis:// URL and verifies the server answers.
// An unreachable server is reported as ErrCacheUnavailable; a malformed URL is not.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, unavailable("redis ping", err)
	}
	return client, nil
}

func (r *RedisRepository) key(fingerprint string) string {
	return r.prefix + fingerprint
}

// Get returns the record under fingerprint; unreadable rows count as misses
func (r *RedisRepository) Get(ctx context.Context, fingerprint string) (*domain.CacheRecord, error) {
	raw, err := r.client.Get(ctx, r.key(fingerprint)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, unavailable("redis get", err)
	}

	var stored redisRecord
	if err := json.Unmarshal(raw, &stored); err != nil {
		// Corrupt rows behave like misses and get overwritten by the next write
		return nil, domain.ErrCacheMiss
	}
	return &domain.CacheRecord{
		Fingerprint: fingerprint,
		QueryType:   stored.QueryType,
		Payload:     stored.Payload,
		CreatedAt:   stored.CreatedAt,
		ExpiresAt:   stored.ExpiresAt,
	}, nil
}

// Set stores record until its expiry; an already expired record is deleted instead
func (r *RedisRepository) Set(ctx context.Context, record *domain.CacheRecord) error {
	ttl := record.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return r.Delete(ctx, record.Fingerprint)
	}

	raw, err := json.Marshal(redisRecord{
		QueryType: record.QueryType,
		Payload:   record.Payload,
		CreatedAt: record.CreatedAt,
		ExpiresAt: record.ExpiresAt,
	})
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(record.Fingerprint), raw, ttl).Err(); err != nil {
		return unavailable("redis set", err)
	}
	return nil
}

// Delete removes fingerprint; deleting an absent key is not an error
func (r *RedisRepository) Delete(ctx context.Context, fingerprint string) error {
	if err := r.client.Del(ctx, r.key(fingerprint)).Err(); err != nil {
		return unavailable("redis del", err)
	}
	return nil
}

// DeleteExpired is a no-op because Redis expires keys itself
func (r *RedisRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
