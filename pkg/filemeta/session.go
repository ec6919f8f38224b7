package filemeta

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Session binds one file URI to the lazily created stores of each extractor.
type Session struct {
	id        uuid.UUID
	uri       string
	hash      URIHash
	manager   *Manager
	logger    *slog.Logger
	mu        sync.Mutex
	localPath string
	stores    map[string]*Store
}

func newSession(m *Manager, uri string, hash URIHash) *Session {
	id := uuid.New()
	return &Session{
		id:      id,
		uri:     uri,
		hash:    hash,
		manager: m,
		logger:  m.logger.With("session", id.String()),
		stores:  make(map[string]*Store),
	}
}

// ID returns the instance id of the session
func (s *Session) ID() uuid.UUID { return s.id }

// URI returns the logical URI of the session
func (s *Session) URI() string { return s.uri }

// Hash returns the URI hash of the session
func (s *Session) Hash() URIHash { return s.hash }

// LocalPath returns the override path, or "" when file reads use the URI.
func (s *Session) LocalPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localPath
}

// WritePath returns the path SaveMetadataToFile writes to: the override
// path when set, otherwise the local path the URI names.
func (s *Session) WritePath() (string, error) {
	return writePath(s.uri, s.LocalPath())
}

// SetLocalPath redirects file reads and writes of every store, existing or
// future, to path. An empty path restores reads from the URI.
func (s *Session) SetLocalPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localPath = path
	for _, st := range s.stores {
		st.setLocalPath(path)
	}
}

// Store returns the session's store for extractorID, creating it on first use.
func (s *Session) Store(extractorID string) (*Store, error) {
	ex, ok := s.manager.extractors[extractorID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownExtractor, extractorID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.stores[extractorID]; ok {
		return st, nil
	}
	st := newStore(ex, s)
	s.stores[extractorID] = st
	return st, nil
}

// Stores lists the ids of the stores created so far, sorted.
func (s *Session) Stores() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.stores))
	for id := range s.stores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetMetadata returns the field at key from the extractor's store, or the
// whole native value when key is nil.
func (s *Session) GetMetadata(ctx context.Context, extractorID string, key Key) (any, bool, error) {
	st, err := s.Store(extractorID)
	if err != nil {
		return nil, false, err
	}
	return st.GetMetadata(ctx, key)
}

// SetMetadata changes the field at key in the extractor's store.
func (s *Session) SetMetadata(extractorID string, key Key, value any) (bool, error) {
	st, err := s.Store(extractorID)
	if err != nil {
		return false, err
	}
	return st.SetMetadata(key, value)
}

// RemoveMetadata deletes the field at key from the extractor's store.
func (s *Session) RemoveMetadata(extractorID string, key Key) (bool, error) {
	st, err := s.Store(extractorID)
	if err != nil {
		return false, err
	}
	return st.RemoveMetadata(key)
}

// LoadMetadata seeds the extractor's store with an in-memory value.
func (s *Session) LoadMetadata(extractorID string, m Metadata) (bool, error) {
	st, err := s.Store(extractorID)
	if err != nil {
		return false, err
	}
	return st.LoadMetadata(m), nil
}

// LoadMetadataFromFile extracts the extractor's metadata from the local file,
// replacing whatever the store holds. It returns false when the file has none.
func (s *Session) LoadMetadataFromFile(ctx context.Context, extractorID string) (bool, error) {
	st, err := s.Store(extractorID)
	if err != nil {
		return false, err
	}
	return st.LoadMetadataFromFile(ctx)
}

// LoadMetadataFromCache replaces the store's metadata with the cached copy.
// It returns false on a cache miss or when no cache is configured.
func (s *Session) LoadMetadataFromCache(ctx context.Context, extractorID string) (bool, error) {
	st, err := s.Store(extractorID)
	if err != nil {
		return false, err
	}
	return st.LoadMetadataFromCache(ctx)
}

// SaveMetadataToCache writes the store's metadata to the cache under the
// session's key, labelled with tags. It returns false when there is nothing to save.
func (s *Session) SaveMetadataToCache(ctx context.Context, extractorID string, tags ...string) (bool, error) {
	st, err := s.Store(extractorID)
	if err != nil {
		return false, err
	}
	return st.SaveMetadataToCache(ctx, tags...)
}

// SaveMetadataToFile writes the store's metadata back into the local file.
// Extractors that cannot write files report ErrUnsupportedOperation.
func (s *Session) SaveMetadataToFile(ctx context.Context, extractorID string) (bool, error) {
	st, err := s.Store(extractorID)
	if err != nil {
		return false, err
	}
	return st.SaveMetadataToFile(ctx)
}

// SupportedKeys enumerates the extractor's keys, optionally for one namespace.
func (s *Session) SupportedKeys(extractorID, namespace string) ([]SupportedKey, error) {
	st, err := s.Store(extractorID)
	if err != nil {
		return nil, err
	}
	return st.SupportedKeys(namespace), nil
}
