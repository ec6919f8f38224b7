package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tendant/file-metadata/pkg/filemeta"
)

// Backend is a Redis implementation of the filemeta.CacheBackend interface.
// Tags are kept as Redis sets of entry keys.
type Backend struct {
	client *redis.Client
	config Config
}

// Config holds Redis-specific configuration
type Config struct {
	// URL is a redis:// URL; when set it overrides Addr, Password and DB
	URL string
	// Addr is the Redis server address (host:port)
	Addr string
	// Password is the Redis password (optional)
	Password string
	// DB is the Redis database number
	DB int
	// Prefix is prepended to every key
	Prefix string
	// TTL is the entry lifetime; zero keeps entries until deleted
	TTL time.Duration
}

// DefaultConfig returns a default Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:   "localhost:6379",
		Prefix: "filemeta:",
	}
}

// New connects to Redis and verifies the connection
func New(config Config) (*Backend, error) {
	opts := &redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	}
	if config.URL != "" {
		parsed, err := redis.ParseURL(config.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		opts = parsed
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewWithClient(client, config), nil
}

// NewWithClient creates a backend over an existing client
func NewWithClient(client *redis.Client, config Config) *Backend {
	return &Backend{
		client: client,
		config: config,
	}
}

func (b *Backend) entryKey(key string) string {
	return b.config.Prefix + key
}

func (b *Backend) tagKey(tag string) string {
	return b.config.Prefix + "tag:" + tag
}

// Get retrieves a cache entry
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := b.client.Get(ctx, b.entryKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, filemeta.ErrCacheMiss
		}
		return nil, err
	}
	return value, nil
}

// Set stores a cache entry and adds it to the set of each tag
func (b *Backend) Set(ctx context.Context, key string, value []byte, tags ...string) error {
	fullKey := b.entryKey(key)
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, fullKey, value, b.config.TTL)
		for _, tag := range tags {
			pipe.SAdd(ctx, b.tagKey(tag), fullKey)
		}
		return nil
	})
	return err
}

// Delete removes a cache entry
func (b *Backend) Delete(ctx context.Context, key string) error {
	return b.client.Del(ctx, b.entryKey(key)).Err()
}

// InvalidateTags removes every entry labelled with any of tags
func (b *Backend) InvalidateTags(ctx context.Context, tags ...string) error {
	for _, tag := range tags {
		tk := b.tagKey(tag)
		members, err := b.client.SMembers(ctx, tk).Result()
		if err != nil {
			return err
		}
		keys := append(members, tk)
		if err := b.client.Del(ctx, keys...).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the Redis connection
func (b *Backend) Close() error {
	return b.client.Close()
}
