package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/tendant/file-metadata/pkg/filemeta"
	fscache "github.com/tendant/file-metadata/pkg/filemeta/cache/fs"
	memorycache "github.com/tendant/file-metadata/pkg/filemeta/cache/memory"
	mongocache "github.com/tendant/file-metadata/pkg/filemeta/cache/mongo"
	pgcache "github.com/tendant/file-metadata/pkg/filemeta/cache/postgres"
	rediscache "github.com/tendant/file-metadata/pkg/filemeta/cache/redis"
	s3cache "github.com/tendant/file-metadata/pkg/filemeta/cache/s3"
	sqlitecache "github.com/tendant/file-metadata/pkg/filemeta/cache/sqlite"
	"github.com/tendant/file-metadata/pkg/filemeta/extractor/exif"
	"github.com/tendant/file-metadata/pkg/filemeta/extractor/imagesize"
	"github.com/tendant/file-metadata/pkg/filemeta/extractor/sidecar"
)

var extractorFactories = map[string]func(c *Config) (filemeta.Extractor, error){
	exif.ID: func(c *Config) (filemeta.Extractor, error) {
		if c.ExifAliasFile == "" {
			return exif.New(), nil
		}
		reg, err := exif.ApplyAliasFile(exif.DefaultRegistry(), c.ExifAliasFile)
		if err != nil {
			return nil, err
		}
		return exif.NewWithRegistry(reg)
	},
	imagesize.ID: func(*Config) (filemeta.Extractor, error) {
		return imagesize.New(), nil
	},
	sidecar.ID: func(*Config) (filemeta.Extractor, error) {
		return sidecar.New(), nil
	},
}

// Runtime is a manager together with the resources backing its cache
type Runtime struct {
	Manager *filemeta.Manager
	Cache   filemeta.CacheBackend

	closers []func() error
}

// Close releases the cache connections
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// NewLogger creates a text logger at the configured level
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// BuildManager creates the cache backend and the extractors and returns a
// manager over them. Extra options are applied after the configured ones.
func (c *Config) BuildManager(ctx context.Context, extra ...filemeta.Option) (*Runtime, error) {
	rt := &Runtime{}

	cache, err := c.buildCache(ctx, rt)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("failed to build cache backend: %w", err)
	}
	rt.Cache = cache

	policy, err := filemeta.ParseCacheStalePolicy(c.CacheStalePolicy)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	options := []filemeta.Option{filemeta.WithCacheStalePolicy(policy)}
	if cache != nil {
		options = append(options, filemeta.WithCache(cache))
	}
	for _, id := range c.Extractors {
		factory, ok := extractorFactories[id]
		if !ok {
			_ = rt.Close()
			return nil, fmt.Errorf("%w: %q", filemeta.ErrUnknownExtractor, id)
		}
		ex, err := factory(c)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("failed to build extractor %s: %w", id, err)
		}
		options = append(options, filemeta.WithExtractor(ex))
	}
	options = append(options, extra...)

	manager, err := filemeta.New(options...)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Manager = manager
	return rt, nil
}

func (c *Config) buildCache(ctx context.Context, rt *Runtime) (filemeta.CacheBackend, error) {
	kind, err := c.CacheKind()
	if err != nil {
		return nil, err
	}

	switch kind {
	case CacheNone:
		return nil, nil

	case CacheMemory:
		return memorycache.NewWithConfig(memorycache.Config{TTL: c.CacheTTL}), nil

	case CacheFS:
		u, _ := url.Parse(c.CacheURL)
		return fscache.New(fscache.Config{BaseDir: u.Path, TTL: c.CacheTTL})

	case CacheSQLite:
		u, _ := url.Parse(c.CacheURL)
		backend, err := sqlitecache.Open(ctx, sqlitecache.Config{Path: sqlitePath(u), TTL: c.CacheTTL})
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, backend.Close)
		return backend, nil

	case CacheRedis:
		backend, err := rediscache.New(rediscache.Config{URL: c.CacheURL, Prefix: c.CachePrefix, TTL: c.CacheTTL})
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, backend.Close)
		return backend, nil

	case CachePostgres:
		pool, err := pgcache.Connect(ctx, c.CacheURL)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() error { pool.Close(); return nil })
		backend, err := pgcache.NewWithPool(pool, pgcache.Config{Table: c.Postgres.Table, TTL: c.CacheTTL})
		if err != nil {
			return nil, err
		}
		if c.Postgres.EnsureSchema {
			if err := backend.EnsureSchema(ctx); err != nil {
				return nil, err
			}
		}
		return backend, nil

	case CacheMongo:
		backend, err := mongocache.New(mongocache.Config{
			URI:        c.CacheURL,
			Database:   c.Mongo.Database,
			Collection: c.Mongo.Collection,
			TTL:        c.CacheTTL,
		})
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() error { return backend.Close(context.Background()) })
		return backend, nil

	case CacheS3:
		cfg, err := c.s3Config()
		if err != nil {
			return nil, err
		}
		return s3cache.New(cfg)
	}
	return nil, fmt.Errorf("unsupported cache kind %q", kind)
}

// s3Config merges s3://bucket/prefix?region=...&endpoint=...&path_style=true
// over the S3 settings
func (c *Config) s3Config() (s3cache.Config, error) {
	u, err := url.Parse(c.CacheURL)
	if err != nil {
		return s3cache.Config{}, fmt.Errorf("invalid cache url: %w", err)
	}

	cfg := s3cache.Config{
		Region:                 c.S3.Region,
		Bucket:                 u.Host,
		Prefix:                 c.S3.Prefix,
		AccessKeyID:            c.S3.AccessKeyID,
		SecretAccessKey:        c.S3.SecretAccessKey,
		Endpoint:               c.S3.Endpoint,
		UsePathStyle:           c.S3.UsePathStyle,
		EnableSSE:              c.S3.EnableSSE,
		SSEAlgorithm:           c.S3.SSEAlgorithm,
		SSEKMSKeyID:            c.S3.SSEKMSKeyID,
		CreateBucketIfNotExist: c.S3.CreateBucket,
	}
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		cfg.Prefix = strings.TrimSuffix(p, "/") + "/"
	}

	q := u.Query()
	if v := q.Get("region"); v != "" {
		cfg.Region = v
	}
	if v := q.Get("endpoint"); v != "" {
		cfg.Endpoint = v
	}
	for name, dst := range map[string]*bool{
		"path_style":    &cfg.UsePathStyle,
		"create_bucket": &cfg.CreateBucketIfNotExist,
		"sse":           &cfg.EnableSSE,
	} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return s3cache.Config{}, fmt.Errorf("invalid %s value %q in s3 url", name, v)
		}
		*dst = b
	}
	return cfg, nil
}
