package filemeta

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Provenance records where a store's current metadata came from.
type Provenance int

const (
	NotLoaded Provenance = iota
	FromFile
	FromCache
	FromMemory
)

func (p Provenance) String() string {
	switch p {
	case NotLoaded:
		return "not_loaded"
	case FromFile:
		return "file"
	case FromCache:
		return "cache"
	case FromMemory:
		return "memory"
	default:
		return fmt.Sprintf("provenance(%d)", int(p))
	}
}

// CacheStalePolicy decides whether replacing cached metadata with a fresh
// file load marks the cache entry stale.
type CacheStalePolicy int

const (
	// StaleOnReload marks the cache stale on any reload away from cached content.
	StaleOnReload CacheStalePolicy = iota
	// StaleOnMutation marks the cache stale only on mutations and in-memory seeds.
	StaleOnMutation
)

// ParseCacheStalePolicy parses "reload" or "mutation".
func ParseCacheStalePolicy(s string) (CacheStalePolicy, error) {
	switch s {
	case "", "reload":
		return StaleOnReload, nil
	case "mutation":
		return StaleOnMutation, nil
	default:
		return StaleOnReload, fmt.Errorf("invalid cache stale policy %q (use 'reload' or 'mutation')", s)
	}
}

// Store owns one extractor's metadata for one file. A Store is not safe for
// concurrent use; its session's owner serializes access.
type Store struct {
	extractor Extractor
	uri       string
	hash      URIHash
	localPath string
	cache     CacheBackend
	logger    *slog.Logger
	policy    CacheStalePolicy

	metadata        Metadata
	provenance      Provenance
	dirty           bool
	dirtySinceCache bool
	// synced is true while the cache holds exactly the current metadata.
	synced bool

	triedCache bool
	triedFile  bool
}

func newStore(ex Extractor, s *Session) *Store {
	return &Store{
		extractor: ex,
		uri:       s.uri,
		hash:      s.hash,
		localPath: s.localPath,
		cache:     s.manager.cache,
		logger:    s.logger.With("extractor", ex.ID()),
		policy:    s.manager.policy,
	}
}

// Extractor returns the extractor backing the store
func (s *Store) Extractor() Extractor {
	return s.extractor
}

// Provenance returns where the current metadata came from
func (s *Store) Provenance() Provenance {
	return s.provenance
}

// IsLoaded reports whether metadata is held
func (s *Store) IsLoaded() bool {
	return s.provenance != NotLoaded
}

// IsDirty reports whether metadata changed since the last load or file save
func (s *Store) IsDirty() bool {
	return s.dirty
}

// DirtySinceCache reports whether metadata loaded from cache has since been superseded
func (s *Store) DirtySinceCache() bool {
	return s.dirtySinceCache
}

// NeedsCacheWrite reports whether SaveMetadataToCache would write
func (s *Store) NeedsCacheWrite() bool {
	return s.provenance != NotLoaded && !s.synced
}

// CacheKey returns the cache entry key of the store
func (s *Store) CacheKey() string {
	return CacheKey(s.extractor.ID(), s.hash)
}

func (s *Store) setLocalPath(path string) {
	if s.localPath != path {
		s.triedFile = false
	}
	s.localPath = path
}

// LoadMetadata seeds the store from an in-memory value. A nil value leaves
// the store not loaded.
func (s *Store) LoadMetadata(m Metadata) bool {
	prev := s.provenance
	s.metadata = m
	s.dirty = false
	s.synced = false
	if m == nil {
		s.provenance = NotLoaded
		s.dirtySinceCache = false
		return false
	}
	s.provenance = FromMemory
	s.dirtySinceCache = prev == FromCache
	return true
}

// LoadMetadataFromFile extracts metadata from the source file. It reports
// false with a nil error when the file holds no relevant metadata.
func (s *Store) LoadMetadataFromFile(ctx context.Context) (bool, error) {
	s.triedFile = true

	path, err := sourcePath(s.uri, s.localPath)
	if err != nil {
		return false, s.fail("load_from_file", err)
	}

	m, err := s.extractor.ExtractFromFile(ctx, path)
	switch {
	case err == nil:
	case errors.Is(err, ErrUnsupportedFormat):
		m = nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrExtraction):
		return false, s.fail("load_from_file", err)
	default:
		return false, s.fail("load_from_file", fmt.Errorf("%w: %w", ErrExtraction, err))
	}

	prev := s.provenance
	s.metadata = m
	s.dirty = false
	if m == nil {
		s.logger.Debug("no metadata in file", "uri", s.uri, "path", path)
		s.provenance = NotLoaded
		s.dirtySinceCache = false
		s.synced = false
		return false, nil
	}

	s.provenance = FromFile
	// Under StaleOnMutation a reload over cached content keeps the cache
	// entry current.
	if prev != FromCache || s.policy != StaleOnMutation {
		s.dirtySinceCache = prev == FromCache
		s.synced = false
	}
	s.logger.Debug("metadata loaded from file", "uri", s.uri, "path", path)
	return true, nil
}

// LoadMetadataFromCache loads metadata from the cache backend. A miss is not
// an error: the store is left not loaded.
func (s *Store) LoadMetadataFromCache(ctx context.Context) (bool, error) {
	s.triedCache = true

	var data []byte
	err := ErrCacheMiss
	if s.cache != nil {
		data, err = s.cache.Get(ctx, s.CacheKey())
	}
	if errors.Is(err, ErrCacheMiss) {
		s.logger.Debug("metadata cache miss", "uri", s.uri)
		s.metadata = nil
		s.provenance = NotLoaded
		s.dirty = false
		s.dirtySinceCache = false
		s.synced = false
		return false, nil
	}
	if err != nil {
		return false, s.fail("load_from_cache", err)
	}

	m, err := s.extractor.Decode(data)
	if err != nil {
		return false, s.fail("load_from_cache", fmt.Errorf("decode cache entry: %w", err))
	}

	s.metadata = m
	s.provenance = FromCache
	s.dirty = false
	s.dirtySinceCache = false
	s.synced = true
	s.logger.Debug("metadata loaded from cache", "uri", s.uri)
	return true, nil
}

// ensureLoaded tries the cache and then the source file, each at most once,
// until metadata is held. Only extraction failures propagate.
func (s *Store) ensureLoaded(ctx context.Context) error {
	if s.provenance != NotLoaded {
		return nil
	}
	if !s.triedCache {
		if _, err := s.LoadMetadataFromCache(ctx); err != nil {
			s.logger.Warn("Failed to load metadata from cache", "uri", s.uri, "err", err)
		}
		if s.provenance != NotLoaded {
			return nil
		}
	}
	if !s.triedFile {
		if _, err := s.LoadMetadataFromFile(ctx); err != nil {
			if errors.Is(err, ErrExtraction) || ctx.Err() != nil {
				return err
			}
			s.logger.Debug("metadata not available from file", "uri", s.uri, "err", err)
		}
	}
	return nil
}

// GetMetadata returns the field at key, or the whole native value when key
// is nil, loading lazily from cache and then file. found is false when there
// is no data.
func (s *Store) GetMetadata(ctx context.Context, key Key) (value any, found bool, err error) {
	var addr Address
	if key != nil {
		if addr, err = s.extractor.Resolver().Resolve(key); err != nil {
			return nil, false, err
		}
	}

	if err := s.ensureLoaded(ctx); err != nil {
		return nil, false, err
	}
	if s.metadata == nil {
		return nil, false, nil
	}
	if key == nil {
		return s.metadata, true, nil
	}
	v, ok := s.extractor.GetField(s.metadata, addr)
	return v, ok, nil
}

// SetMetadata changes the field at key. It reports false when the field does
// not exist.
func (s *Store) SetMetadata(key Key, value any) (bool, error) {
	return s.mutate("set", key, func(addr Address) (bool, error) {
		return s.extractor.SetField(s.metadata, addr, value)
	})
}

// RemoveMetadata deletes the field at key. It reports false when the field
// does not exist.
func (s *Store) RemoveMetadata(key Key) (bool, error) {
	return s.mutate("remove", key, func(addr Address) (bool, error) {
		return s.extractor.RemoveField(s.metadata, addr)
	})
}

func (s *Store) mutate(op string, key Key, apply func(Address) (bool, error)) (bool, error) {
	if s.provenance == NotLoaded {
		return false, s.fail(op, ErrNotLoaded)
	}
	addr, err := s.extractor.Resolver().Resolve(key)
	if err != nil {
		return false, err
	}

	applied, err := apply(addr)
	if err != nil {
		if isNoData(err) {
			return false, nil
		}
		return false, s.fail(op, err)
	}
	if !applied {
		return false, nil
	}

	s.dirty = true
	s.synced = false
	if s.provenance == FromCache {
		s.dirtySinceCache = true
	}
	return true, nil
}

// SaveMetadataToCache writes the metadata to the cache backend unless the
// cache already holds exactly the current content.
func (s *Store) SaveMetadataToCache(ctx context.Context, tags ...string) (bool, error) {
	if s.provenance == NotLoaded || s.cache == nil {
		return false, nil
	}
	if !s.NeedsCacheWrite() {
		return false, nil
	}

	data, err := s.extractor.Encode(s.metadata)
	if err != nil {
		return false, s.fail("save_to_cache", fmt.Errorf("encode cache entry: %w", err))
	}
	if err := s.cache.Set(ctx, s.CacheKey(), data, tags...); err != nil {
		return false, s.fail("save_to_cache", err)
	}

	s.dirtySinceCache = false
	s.synced = true
	s.logger.Debug("metadata saved to cache", "uri", s.uri, "bytes", len(data))
	return true, nil
}

// SaveMetadataToFile writes changed metadata back to the source file.
func (s *Store) SaveMetadataToFile(ctx context.Context) (bool, error) {
	if !s.extractor.CanWriteToFile() {
		return false, s.fail("save_to_file", ErrUnsupportedOperation)
	}
	if s.provenance == NotLoaded || !s.dirty {
		return false, nil
	}

	path, err := writePath(s.uri, s.localPath)
	if err != nil {
		return false, s.fail("save_to_file", err)
	}
	ok, err := s.extractor.WriteToFile(ctx, s.metadata, path)
	if err != nil {
		return false, s.fail("save_to_file", err)
	}
	if ok {
		s.dirty = false
		s.logger.Debug("metadata saved to file", "uri", s.uri, "path", path)
	}
	return ok, nil
}

// SupportedKeys enumerates the extractor's keys, optionally for one namespace
func (s *Store) SupportedKeys(namespace string) []SupportedKey {
	return s.extractor.SupportedKeys(namespace)
}

func (s *Store) fail(op string, err error) error {
	return &StoreError{Extractor: s.extractor.ID(), URI: s.uri, Op: op, Err: err}
}
