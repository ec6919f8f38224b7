package filemeta

import (
	"context"
)

// Metadata is an extractor's native in-memory representation of a file's
// metadata. The core never inspects it; it only hands it back to the
// extractor that produced it.
type Metadata any

// Extractor defines the interface for metadata extractor plugins
type Extractor interface {
	// ID returns the identifier the extractor is registered under
	ID() string

	// Resolver returns the key resolver for the extractor's address space
	Resolver() *Resolver

	// SupportedKeys enumerates the keys valid in namespace, or all keys if empty
	SupportedKeys(namespace string) []SupportedKey

	// ExtractFromFile parses the file at path. It returns ErrUnsupportedFormat
	// (or nil metadata) when the file holds no relevant data, and any other
	// error when the file is malformed.
	ExtractFromFile(ctx context.Context, path string) (Metadata, error)

	// Encode serializes metadata into a cache blob
	Encode(m Metadata) ([]byte, error)

	// Decode restores metadata from a cache blob
	Decode(data []byte) (Metadata, error)

	// GetField returns the value at addr, or false when absent
	GetField(m Metadata, addr Address) (any, bool)

	// SetField changes the value at addr. ErrFieldNotFound reports an absent field.
	SetField(m Metadata, addr Address, value any) (bool, error)

	// RemoveField deletes the value at addr. It returns false when absent.
	RemoveField(m Metadata, addr Address) (bool, error)

	// CanWriteToFile reports whether WriteToFile is supported
	CanWriteToFile() bool

	// WriteToFile persists metadata to the file at path
	WriteToFile(ctx context.Context, m Metadata, path string) (bool, error)
}

// CacheBackend defines the interface for persistent metadata caches
type CacheBackend interface {
	// Get returns the blob stored under key, or ErrCacheMiss
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a blob under key, labelled with optional tags
	Set(ctx context.Context, key string, value []byte, tags ...string) error

	// Delete removes the entry under key
	Delete(ctx context.Context, key string) error
}

// TagInvalidator is implemented by cache backends able to drop every entry
// labelled with any of the given tags.
type TagInvalidator interface {
	InvalidateTags(ctx context.Context, tags ...string) error
}

// BaseExtractor provides the resolver-backed parts of an Extractor and
// reports file writes as unsupported. Extractors embed it.
type BaseExtractor struct {
	id       string
	resolver *Resolver
}

// NewBaseExtractor creates a BaseExtractor for id using resolver.
func NewBaseExtractor(id string, resolver *Resolver) BaseExtractor {
	return BaseExtractor{id: id, resolver: resolver}
}

// ID returns the extractor id
func (b BaseExtractor) ID() string {
	return b.id
}

// Resolver returns the extractor's key resolver
func (b BaseExtractor) Resolver() *Resolver {
	return b.resolver
}

// SupportedKeys enumerates the resolver's keys
func (b BaseExtractor) SupportedKeys(namespace string) []SupportedKey {
	return b.resolver.SupportedKeys(namespace)
}

// CanWriteToFile reports false
func (b BaseExtractor) CanWriteToFile() bool {
	return false
}

// WriteToFile fails with ErrUnsupportedOperation
func (b BaseExtractor) WriteToFile(ctx context.Context, m Metadata, path string) (bool, error) {
	return false, ErrUnsupportedOperation
}
