package cache

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pricescout/backend/internal/domain"
)

// SQLiteRepository stores cache records in a local SQLite database.
// Times are kept as unix milliseconds so the expiry index compares integers.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (or creates) the database at path and runs the
// schema migration.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, unavailable("create cache dir", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, unavailable("open cache db", err)
	}
	// One writer at a time; WAL keeps readers unblocked
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, unavailable("set WAL mode", err)
	}
	if err := migrateSQLite(db); err != nil {
		db.Close()
		return nil, unavailable("migrate cache db", err)
	}
	return &SQLiteRepository{db: db}, nil
}

func migrateSQLite(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS search_cache (
			fingerprint TEXT PRIMARY KEY,
			query_type  TEXT NOT NULL,
			payload     BLOB NOT NULL,
			created_at  INTEGER NOT NULL,
			expires_at  INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_search_cache_expires_at ON search_cache (expires_at);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteRepository) Close() error {
	return s.db.Close()
}

// Get returns the row under fingerprint, expired or not
func (s *SQLiteRepository) Get(ctx context.Context, fingerprint string) (*domain.CacheRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT query_type, payload, created_at, expires_at FROM search_cache WHERE fingerprint = ?", fingerprint,
	)

	record := domain.CacheRecord{Fingerprint: fingerprint}
	var queryType string
	var createdAt, expiresAt int64
	if err := row.Scan(&queryType, &record.Payload, &createdAt, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCacheMiss
		}
		return nil, unavailable("sqlite get", err)
	}
	record.QueryType = domain.QueryType(queryType)
	record.CreatedAt = time.UnixMilli(createdAt).UTC()
	record.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	return &record, nil
}

// Set upserts record by fingerprint
func (s *SQLiteRepository) Set(ctx context.Context, record *domain.CacheRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_cache (fingerprint, query_type, payload, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO UPDATE SET
			query_type = excluded.query_type,
			payload    = excluded.payload,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		record.Fingerprint, string(record.QueryType), record.Payload,
		record.CreatedAt.UnixMilli(), record.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		return unavailable("sqlite upsert", err)
	}
	return nil
}

// Delete removes fingerprint; deleting an absent row is not an error
func (s *SQLiteRepository) Delete(ctx context.Context, fingerprint string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM search_cache WHERE fingerprint = ?", fingerprint); err != nil {
		return unavailable("sqlite delete", err)
	}
	return nil
}

// DeleteExpired removes rows expired at now
func (s *SQLiteRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM search_cache WHERE expires_at <= ?", now.UnixMilli())
	if err != nil {
		return 0, unavailable("sqlite sweep", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
