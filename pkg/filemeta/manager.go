package filemeta

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Manager maps URIs to their sessions. It is the entry point of the package.
type Manager struct {
	mu       sync.Mutex
	sessions map[URIHash]*Session

	extractors map[string]Extractor
	pending    []Extractor
	cache      CacheBackend
	logger     *slog.Logger
	policy     CacheStalePolicy
}

// Option represents a functional option for configuring the manager
type Option func(*Manager)

// WithExtractor registers an extractor under its ID
func WithExtractor(ex Extractor) Option {
	return func(m *Manager) {
		m.pending = append(m.pending, ex)
	}
}

// WithCache sets the persistent cache backend. Without one every cache
// lookup misses and cache writes are not applied.
func WithCache(cache CacheBackend) Option {
	return func(m *Manager) {
		m.cache = cache
	}
}

// WithLogger sets the logger used by the manager and its sessions
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithCacheStalePolicy sets how stores treat file reloads over cached content
func WithCacheStalePolicy(p CacheStalePolicy) Option {
	return func(m *Manager) {
		m.policy = p
	}
}

// New creates a manager with the given options
func New(options ...Option) (*Manager, error) {
	m := &Manager{
		sessions:   make(map[URIHash]*Session),
		extractors: make(map[string]Extractor),
		logger:     slog.Default(),
	}

	for _, option := range options {
		option(m)
	}

	for _, ex := range m.pending {
		if ex == nil {
			return nil, errors.New("extractor is nil")
		}
		id := ex.ID()
		if id == "" {
			return nil, errors.New("extractor id is required")
		}
		if _, dup := m.extractors[id]; dup {
			return nil, fmt.Errorf("extractor %q registered twice", id)
		}
		m.extractors[id] = ex
	}
	m.pending = nil

	if len(m.extractors) == 0 {
		return nil, errors.New("at least one extractor is required")
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}

	return m, nil
}

// Use returns the session of uri, creating it on first use. Repeated calls
// with the same string return the same session.
func (m *Manager) Use(uri string) *Session {
	hash := HashURI(uri)

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[hash]; ok {
		return s
	}
	s := newSession(m, uri, hash)
	m.sessions[hash] = s
	m.logger.Debug("metadata session created", "uri", uri, "session", s.id.String())
	return s
}

// Has reports whether a session exists for uri
func (m *Manager) Has(uri string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[HashURI(uri)]
	return ok
}

// Release drops the session of uri with all its stores. It reports false when
// no session existed.
func (m *Manager) Release(uri string) bool {
	hash := HashURI(uri)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[hash]; !ok {
		return false
	}
	delete(m.sessions, hash)
	return true
}

// Count returns the number of live sessions
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Extractors lists the registered extractor ids, sorted
func (m *Manager) Extractors() []string {
	ids := make([]string, 0, len(m.extractors))
	for id := range m.extractors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Extractor returns the extractor registered under id
func (m *Manager) Extractor(id string) (Extractor, error) {
	ex, ok := m.extractors[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownExtractor, id)
	}
	return ex, nil
}
