package config

import (
	"errors"
	"time"
)

// WithCacheURL selects the persistent cache
func WithCacheURL(u string) Option {
	return func(c *Config) error {
		c.CacheURL = u
		return nil
	}
}

// WithCacheTTL sets the cache entry lifetime
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Config) error {
		if ttl < 0 {
			return errors.New("cache ttl must not be negative")
		}
		c.CacheTTL = ttl
		return nil
	}
}

// WithExtractors replaces the list of enabled extractors
func WithExtractors(ids ...string) Option {
	return func(c *Config) error {
		c.Extractors = append([]string(nil), ids...)
		return nil
	}
}

// WithExifAliasFile sets the YAML file of extra EXIF namespace aliases
func WithExifAliasFile(path string) Option {
	return func(c *Config) error {
		c.ExifAliasFile = path
		return nil
	}
}

// WithCacheStalePolicy sets "reload" or "mutation"
func WithCacheStalePolicy(policy string) Option {
	return func(c *Config) error {
		c.CacheStalePolicy = policy
		return nil
	}
}

// WithLogLevel sets the log level name
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.LogLevel = level
		return nil
	}
}
