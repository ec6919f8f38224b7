package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/file-metadata/pkg/filemeta"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// DefaultTable is the table cache entries are stored in
const DefaultTable = "file_metadata_cache"

// Config options for the Postgres backend
type Config struct {
	Table string        // Table name, DefaultTable when empty
	TTL   time.Duration // Entry lifetime; zero keeps entries until deleted
}

// Backend implements filemeta.CacheBackend using PostgreSQL
type Backend struct {
	db    DBTX
	table string
	ttl   time.Duration
	now   func() time.Time
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// New creates a new PostgreSQL cache backend
func New(db DBTX, config Config) (*Backend, error) {
	if db == nil {
		return nil, errors.New("database handle is required")
	}
	if config.Table == "" {
		config.Table = DefaultTable
	}
	if !tableName.MatchString(config.Table) {
		return nil, fmt.Errorf("invalid table name %q", config.Table)
	}
	return &Backend{db: db, table: config.Table, ttl: config.TTL, now: time.Now}, nil
}

// NewWithPool creates a new PostgreSQL cache backend with connection pool
func NewWithPool(pool *pgxpool.Pool, config Config) (*Backend, error) {
	return New(pool, config)
}

// Connect opens a connection pool for databaseURL and verifies it
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the cache table and its tag index if missing
func (b *Backend) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			cache_key  TEXT PRIMARY KEY,
			value      BYTEA NOT NULL,
			tags       TEXT[] NOT NULL DEFAULT '{}',
			expires_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS %[2]s_tags_idx ON %[1]s USING GIN (tags)`,
		b.table, indexPrefix(b.table))

	if _, err := b.db.Exec(ctx, query); err != nil {
		return b.handlePostgresError("ensure_schema", err)
	}
	return nil
}

func indexPrefix(table string) string {
	out := []byte(table)
	for i, c := range out {
		if c == '.' {
			out[i] = '_'
		}
	}
	return string(out)
}

// Error handling helper
func (b *Backend) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table %s does not exist - run EnsureSchema or apply the migration", b.table)
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Get retrieves a cache entry
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	query := fmt.Sprintf(`
		SELECT value FROM %s
		WHERE cache_key = $1 AND (expires_at IS NULL OR expires_at > $2)`, b.table)

	var value []byte
	err := b.db.QueryRow(ctx, query, key, b.now().UTC()).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, filemeta.ErrCacheMiss
		}
		return nil, b.handlePostgresError("get", err)
	}
	return value, nil
}

// Set upserts a cache entry
func (b *Backend) Set(ctx context.Context, key string, value []byte, tags ...string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (cache_key, value, tags, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cache_key) DO UPDATE SET
			value = EXCLUDED.value,
			tags = EXCLUDED.tags,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at`, b.table)

	now := b.now().UTC()
	var expiresAt *time.Time
	if b.ttl > 0 {
		t := now.Add(b.ttl)
		expiresAt = &t
	}
	if tags == nil {
		tags = []string{}
	}

	if _, err := b.db.Exec(ctx, query, key, value, tags, expiresAt, now); err != nil {
		return b.handlePostgresError("set", err)
	}
	return nil
}

// Delete removes a cache entry
func (b *Backend) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE cache_key = $1`, b.table)
	if _, err := b.db.Exec(ctx, query, key); err != nil {
		return b.handlePostgresError("delete", err)
	}
	return nil
}

// InvalidateTags removes every entry labelled with any of tags
func (b *Backend) InvalidateTags(ctx context.Context, tags ...string) error {
	if len(tags) == 0 {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE tags && $1`, b.table)
	if _, err := b.db.Exec(ctx, query, tags); err != nil {
		return b.handlePostgresError("invalidate_tags", err)
	}
	return nil
}

// PurgeExpired deletes expired entries and returns how many were removed
func (b *Backend) PurgeExpired(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE expires_at IS NOT NULL AND expires_at <= $1`, b.table)
	tag, err := b.db.Exec(ctx, query, b.now().UTC())
	if err != nil {
		return 0, b.handlePostgresError("purge_expired", err)
	}
	return tag.RowsAffected(), nil
}
