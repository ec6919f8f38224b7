package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tendant/file-metadata/pkg/filemeta"
)

// Backend is a filesystem implementation of the filemeta.CacheBackend interface.
// Each entry is one file under BaseDir named by the SHA-256 of its key.
type Backend struct {
	baseDir string
	ttl     time.Duration
	now     func() time.Time
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string        // Base directory for cache entries
	TTL     time.Duration // Entry lifetime measured from the file modification time; zero disables expiry
}

// New creates a new filesystem cache backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{
		baseDir: config.BaseDir,
		ttl:     config.TTL,
		now:     time.Now,
	}, nil
}

func (b *Backend) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	name := hex.EncodeToString(sum[:])
	return filepath.Join(b.baseDir, name[:2], name)
}

// Get reads a cache entry
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := b.path(key)
	if b.ttl > 0 {
		info, err := os.Stat(p)
		if errors.Is(err, os.ErrNotExist) {
			return nil, filemeta.ErrCacheMiss
		} else if err != nil {
			return nil, fmt.Errorf("failed to stat cache entry: %w", err)
		}
		if b.now().After(info.ModTime().Add(b.ttl)) {
			_ = os.Remove(p)
			return nil, filemeta.ErrCacheMiss
		}
	}

	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, filemeta.ErrCacheMiss
	} else if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return data, nil
}

// Set writes a cache entry. The file is replaced atomically so readers never
// observe a partial entry. Tags are not recorded by this backend.
func (b *Backend) Set(ctx context.Context, key string, value []byte, tags ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p := b.path(key)
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".entry-*")
	if err != nil {
		return fmt.Errorf("failed to create cache entry: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// Delete removes a cache entry
func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p := b.path(key)
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	b.cleanupEmptyDirectories(filepath.Dir(p))
	return nil
}

// cleanupEmptyDirectories removes the entry's shard directory once empty
func (b *Backend) cleanupEmptyDirectories(dir string) {
	if dir == b.baseDir {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return
	}
	_ = os.Remove(dir)
}
