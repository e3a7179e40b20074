package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pricescout/backend/internal/domain"
)

const defaultPostgresMaxConns = 4

// PostgresRepository stores cache records in a shared Postgres table so
// several server instances see the same cache.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects to dsn and creates the cache table.
// An unreachable server is reported as ErrCacheUnavailable; a malformed DSN is not.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns <= 0 || cfg.MaxConns > defaultPostgresMaxConns {
		cfg.MaxConns = defaultPostgresMaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, unavailable("connect postgres", err)
	}
	if err := migratePostgres(ctx, pool); err != nil {
		pool.Close()
		return nil, unavailable("migrate cache table", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

func migratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS search_cache (
			fingerprint TEXT PRIMARY KEY,
			query_type  TEXT NOT NULL,
			payload     BYTEA NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL,
			expires_at  TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_search_cache_expires_at ON search_cache (expires_at)`)
	return err
}

// Close releases the connection pool
func (p *PostgresRepository) Close() {
	p.pool.Close()
}

// Get returns the row under fingerprint, expired or not
func (p *PostgresRepository) Get(ctx context.Context, fingerprint string) (*domain.CacheRecord, error) {
	record := domain.CacheRecord{Fingerprint: fingerprint}
	var queryType string
	err := p.pool.QueryRow(ctx,
		`SELECT query_type, payload, created_at, expires_at FROM search_cache WHERE fingerprint = $1`,
		fingerprint,
	).Scan(&queryType, &record.Payload, &record.CreatedAt, &record.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, unavailable("postgres get", err)
	}
	record.QueryType = domain.QueryType(queryType)
	return &record, nil
}

// Set upserts record by fingerprint
func (p *PostgresRepository) Set(ctx context.Context, record *domain.CacheRecord) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO search_cache (fingerprint, query_type, payload, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (fingerprint) DO UPDATE SET
			query_type = EXCLUDED.query_type,
			payload    = EXCLUDED.payload,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at`,
		record.Fingerprint, string(record.QueryType), record.Payload, record.CreatedAt, record.ExpiresAt,
	)
	if err != nil {
		return unavailable("postgres upsert", err)
	}
	return nil
}

// Delete removes fingerprint; deleting an absent row is not an error
func (p *PostgresRepository) Delete(ctx context.Context, fingerprint string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM search_cache WHERE fingerprint = $1`, fingerprint); err != nil {
		return unavailable("postgres delete", err)
	}
	return nil
}

// DeleteExpired removes rows expired at now using the expiry index
func (p *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM search_cache WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, unavailable("postgres sweep", err)
	}
	return tag.RowsAffected(), nil
}
