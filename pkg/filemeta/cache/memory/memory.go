package memory

import (
	"context"
	"sync"
	"time"

	"github.com/tendant/file-metadata/pkg/filemeta"
)

// Backend is an in-memory implementation of the filemeta.CacheBackend interface
type Backend struct {
	mu      sync.RWMutex
	entries map[string]entry
	tags    map[string]map[string]struct{}
	ttl     time.Duration
	now     func() time.Time
}

type entry struct {
	value   []byte
	tags    []string
	expires time.Time
}

// Config options for the memory backend
type Config struct {
	TTL time.Duration // Entry lifetime; zero keeps entries until deleted
}

// New creates a new in-memory cache backend without expiry
func New() *Backend {
	return NewWithConfig(Config{})
}

// NewWithConfig creates a new in-memory cache backend
func NewWithConfig(config Config) *Backend {
	return &Backend{
		entries: make(map[string]entry),
		tags:    make(map[string]map[string]struct{}),
		ttl:     config.TTL,
		now:     time.Now,
	}
}

// Get retrieves a cache entry
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	e, ok := b.entries[key]
	b.mu.RUnlock()
	if !ok {
		return nil, filemeta.ErrCacheMiss
	}

	if !e.expires.IsZero() && b.now().After(e.expires) {
		b.mu.Lock()
		b.remove(key)
		b.mu.Unlock()
		return nil, filemeta.ErrCacheMiss
	}

	return append([]byte(nil), e.value...), nil
}

// Set stores a cache entry, replacing any previous entry and its tags
func (b *Backend) Set(ctx context.Context, key string, value []byte, tags ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e := entry{
		value: append([]byte(nil), value...),
		tags:  append([]string(nil), tags...),
	}
	if b.ttl > 0 {
		e.expires = b.now().Add(b.ttl)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.remove(key)
	b.entries[key] = e
	for _, tag := range tags {
		keys, ok := b.tags[tag]
		if !ok {
			keys = make(map[string]struct{})
			b.tags[tag] = keys
		}
		keys[key] = struct{}{}
	}
	return nil
}

// Delete removes a cache entry. Deleting an absent entry is not an error.
func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.remove(key)
	return nil
}

// InvalidateTags removes every entry labelled with any of tags
func (b *Backend) InvalidateTags(ctx context.Context, tags ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, tag := range tags {
		for key := range b.tags[tag] {
			b.remove(key)
		}
		delete(b.tags, tag)
	}
	return nil
}

// Len returns the number of stored entries, expired ones included
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// remove drops key and its tag index entries. Callers hold b.mu.
func (b *Backend) remove(key string) {
	e, ok := b.entries[key]
	if !ok {
		return
	}
	delete(b.entries, key)
	for _, tag := range e.tags {
		if keys, ok := b.tags[tag]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(b.tags, tag)
			}
		}
	}
}
