// Package sqlite stores cache entries in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/tendant/file-metadata/pkg/filemeta"
)

// Config options for the SQLite backend
type Config struct {
	Path string        // Database file path
	TTL  time.Duration // Entry lifetime; zero keeps entries until deleted
}

// Backend implements filemeta.CacheBackend on SQLite
type Backend struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	cache_key  TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at INTEGER,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS cache_tags (
	cache_key TEXT NOT NULL,
	tag       TEXT NOT NULL,
	PRIMARY KEY (cache_key, tag)
);
CREATE INDEX IF NOT EXISTS cache_tags_tag_idx ON cache_tags (tag);`

// Open opens the database at config.Path and creates the schema
func Open(ctx context.Context, config Config) (*Backend, error) {
	if config.Path == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", config.Path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	b := New(db, config)
	if err := b.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// New creates a backend over an existing handle. The schema is not created.
func New(db *sql.DB, config Config) *Backend {
	return &Backend{db: db, ttl: config.TTL, now: time.Now}
}

// EnsureSchema creates the cache tables if missing
func (b *Backend) EnsureSchema(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create sqlite schema: %w", err)
	}
	return nil
}

// Get retrieves a cache entry
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.db.QueryRowContext(ctx,
		`SELECT value FROM cache_entries WHERE cache_key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		key, b.now().UnixNano()).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, filemeta.ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return value, nil
}

// Set upserts a cache entry and replaces its tags
func (b *Backend) Set(ctx context.Context, key string, value []byte, tags ...string) error {
	now := b.now()
	var expiresAt sql.NullInt64
	if b.ttl > 0 {
		expiresAt = sql.NullInt64{Int64: now.Add(b.ttl).UnixNano(), Valid: true}
	}

	return b.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cache_entries (cache_key, value, expires_at, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (cache_key) DO UPDATE SET
				value = excluded.value,
				expires_at = excluded.expires_at,
				updated_at = excluded.updated_at`,
			key, value, expiresAt, now.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to set cache entry: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM cache_tags WHERE cache_key = ?`, key); err != nil {
			return fmt.Errorf("failed to reset cache tags: %w", err)
		}
		for _, tag := range tags {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO cache_tags (cache_key, tag) VALUES (?, ?)`, key, tag); err != nil {
				return fmt.Errorf("failed to tag cache entry: %w", err)
			}
		}
		return nil
	})
}

// Delete removes a cache entry with its tags
func (b *Backend) Delete(ctx context.Context, key string) error {
	return b.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_key = ?`, key); err != nil {
			return fmt.Errorf("failed to delete cache entry: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM cache_tags WHERE cache_key = ?`, key); err != nil {
			return fmt.Errorf("failed to delete cache tags: %w", err)
		}
		return nil
	})
}

// InvalidateTags removes every entry labelled with any of tags
func (b *Backend) InvalidateTags(ctx context.Context, tags ...string) error {
	if len(tags) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tags)), ",")
	args := make([]any, len(tags))
	for i, tag := range tags {
		args[i] = tag
	}
	keys := `SELECT cache_key FROM cache_tags WHERE tag IN (` + placeholders + `)`

	return b.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM cache_entries WHERE cache_key IN (`+keys+`)`, args...); err != nil {
			return fmt.Errorf("failed to invalidate tags: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM cache_tags WHERE cache_key IN (`+keys+`)`, args...); err != nil {
			return fmt.Errorf("failed to invalidate tags: %w", err)
		}
		return nil
	})
}

// PurgeExpired deletes expired entries and returns how many were removed
func (b *Backend) PurgeExpired(ctx context.Context) (int64, error) {
	var n int64
	err := b.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at <= ?`, b.now().UnixNano())
		if err != nil {
			return fmt.Errorf("failed to purge expired entries: %w", err)
		}
		n, _ = res.RowsAffected()
		_, err = tx.ExecContext(ctx,
			`DELETE FROM cache_tags WHERE cache_key NOT IN (SELECT cache_key FROM cache_entries)`)
		if err != nil {
			return fmt.Errorf("failed to purge orphaned tags: %w", err)
		}
		return nil
	})
	return n, err
}

// Close closes the database
func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
