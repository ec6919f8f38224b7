// Package config builds a filemeta.Manager from environment variables, a
// YAML file or explicit options.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/tendant/file-metadata/pkg/filemeta"
	"github.com/tendant/file-metadata/pkg/filemeta/extractor/exif"
	"github.com/tendant/file-metadata/pkg/filemeta/extractor/imagesize"
	"github.com/tendant/file-metadata/pkg/filemeta/extractor/sidecar"
)

// Option applies configuration to a Config instance.
type Option func(*Config) error

// Load constructs a Config by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*Config, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() Config {
	return Config{
		CacheURL:         "memory://",
		CachePrefix:      "filemeta:",
		Extractors:       []string{exif.ID, imagesize.ID, sidecar.ID},
		CacheStalePolicy: "reload",
		LogLevel:         "info",
		S3: S3Config{
			Region: "us-east-1",
			Prefix: "filemeta/",
		},
		Mongo: MongoConfig{
			Database: "filemeta",
		},
		Postgres: PostgresConfig{
			EnsureSchema: true,
		},
	}
}

// Config is the manager configuration. Fields carry both YAML keys and
// environment variable names.
type Config struct {
	// CacheURL selects the persistent cache: memory://, none, file:///dir,
	// sqlite:///path/cache.db, redis://host:6379/0, postgres://...,
	// mongodb://... or s3://bucket/prefix
	CacheURL    string        `yaml:"cache_url" env:"FILEMDM_CACHE_URL" env-description:"Persistent cache location"`
	CacheTTL    time.Duration `yaml:"cache_ttl" env:"FILEMDM_CACHE_TTL" env-description:"Cache entry lifetime, zero keeps entries"`
	CachePrefix string        `yaml:"cache_prefix" env:"FILEMDM_CACHE_PREFIX" env-description:"Key prefix for the redis cache"`

	Extractors       []string `yaml:"extractors" env:"FILEMDM_EXTRACTORS" env-separator:"," env-description:"Enabled extractors"`
	ExifAliasFile    string   `yaml:"exif_alias_file" env:"FILEMDM_EXIF_ALIAS_FILE" env-description:"YAML file of extra EXIF namespace aliases"`
	CacheStalePolicy string   `yaml:"cache_stale_policy" env:"FILEMDM_CACHE_STALE_POLICY" env-description:"When a file reload makes the cache stale: reload or mutation"`
	LogLevel         string   `yaml:"log_level" env:"FILEMDM_LOG_LEVEL" env-description:"debug, info, warn or error"`

	S3       S3Config       `yaml:"s3"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// S3Config holds settings of the s3:// cache that do not fit in the URL
type S3Config struct {
	Region          string `yaml:"region" env:"FILEMDM_S3_REGION" env-description:"S3 region"`
	Endpoint        string `yaml:"endpoint" env:"FILEMDM_S3_ENDPOINT" env-description:"Custom S3 endpoint, e.g. MinIO"`
	AccessKeyID     string `yaml:"access_key_id" env:"AWS_ACCESS_KEY_ID" env-description:"S3 access key"`
	SecretAccessKey string `yaml:"secret_access_key" env:"AWS_SECRET_ACCESS_KEY" env-description:"S3 secret key"`
	Prefix          string `yaml:"prefix" env:"FILEMDM_S3_PREFIX" env-description:"Object key prefix"`
	UsePathStyle    bool   `yaml:"use_path_style" env:"FILEMDM_S3_USE_PATH_STYLE" env-description:"Use path-style addressing"`
	CreateBucket    bool   `yaml:"create_bucket" env:"FILEMDM_S3_CREATE_BUCKET" env-description:"Create the bucket when missing"`
	EnableSSE       bool   `yaml:"enable_sse" env:"FILEMDM_S3_ENABLE_SSE" env-description:"Enable server-side encryption"`
	SSEAlgorithm    string `yaml:"sse_algorithm" env:"FILEMDM_S3_SSE_ALGORITHM" env-description:"AES256 or aws:kms"`
	SSEKMSKeyID     string `yaml:"sse_kms_key_id" env:"FILEMDM_S3_SSE_KMS_KEY_ID" env-description:"KMS key for aws:kms"`
}

// MongoConfig holds settings of the mongodb:// cache
type MongoConfig struct {
	Database   string `yaml:"database" env:"FILEMDM_MONGO_DATABASE" env-description:"MongoDB database"`
	Collection string `yaml:"collection" env:"FILEMDM_MONGO_COLLECTION" env-description:"MongoDB collection"`
}

// PostgresConfig holds settings of the postgres:// cache
type PostgresConfig struct {
	Table        string `yaml:"table" env:"FILEMDM_POSTGRES_TABLE" env-description:"Cache table, optionally schema-qualified"`
	EnsureSchema bool   `yaml:"ensure_schema" env:"FILEMDM_POSTGRES_ENSURE_SCHEMA" env-description:"Create the cache table when missing"`
}

// Cache backend kinds, as derived from CacheURL
const (
	CacheNone     = "none"
	CacheMemory   = "memory"
	CacheFS       = "fs"
	CacheSQLite   = "sqlite"
	CacheRedis    = "redis"
	CachePostgres = "postgres"
	CacheMongo    = "mongo"
	CacheS3       = "s3"
)

// CacheKind returns the backend kind selected by CacheURL
func (c *Config) CacheKind() (string, error) {
	raw := strings.TrimSpace(c.CacheURL)
	switch raw {
	case "", "memory", "memory://":
		return CacheMemory, nil
	case "none", "off":
		return CacheNone, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid cache url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "memory":
		return CacheMemory, nil
	case "file":
		if u.Path == "" {
			return "", errors.New("file cache url requires a directory path")
		}
		return CacheFS, nil
	case "sqlite", "sqlite3":
		if sqlitePath(u) == "" {
			return "", errors.New("sqlite cache url requires a database path")
		}
		return CacheSQLite, nil
	case "redis", "rediss":
		return CacheRedis, nil
	case "postgres", "postgresql":
		return CachePostgres, nil
	case "mongodb", "mongodb+srv":
		return CacheMongo, nil
	case "s3":
		if u.Host == "" {
			return "", errors.New("s3 cache url requires a bucket name")
		}
		return CacheS3, nil
	}
	return "", fmt.Errorf("unsupported cache url scheme %q", u.Scheme)
}

// sqlitePath accepts sqlite:///abs/path.db and sqlite://rel/path.db
func sqlitePath(u *url.URL) string {
	return u.Host + u.Path
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if _, err := c.CacheKind(); err != nil {
		return err
	}

	if c.CacheTTL < 0 {
		return errors.New("cache_ttl must not be negative")
	}

	if len(c.Extractors) == 0 {
		return errors.New("at least one extractor is required")
	}
	seen := map[string]bool{}
	for _, id := range c.Extractors {
		if _, ok := extractorFactories[id]; !ok {
			return fmt.Errorf("%w: %q", filemeta.ErrUnknownExtractor, id)
		}
		if seen[id] {
			return fmt.Errorf("extractor %q listed twice", id)
		}
		seen[id] = true
	}

	if _, err := filemeta.ParseCacheStalePolicy(c.CacheStalePolicy); err != nil {
		return err
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

// ParseLogLevel maps debug, info, warn and error to slog levels
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}
