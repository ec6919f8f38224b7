package filemeta

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrUnknownKey indicates a key name or namespace has no mapping
	ErrUnknownKey = errors.New("unknown metadata key")

	// ErrAmbiguousKey indicates a bare key name has no default namespace
	ErrAmbiguousKey = errors.New("no default namespace for metadata key")

	// ErrInvalidKeySpec indicates a malformed key (missing element, wrong element type)
	ErrInvalidKeySpec = errors.New("invalid metadata key specification")

	// ErrSourceNotFound indicates neither the local path nor the URI resolve to a readable file
	ErrSourceNotFound = errors.New("source file not found")

	// ErrExtraction indicates the extractor could not parse the source file
	ErrExtraction = errors.New("metadata extraction failed")

	// ErrUnsupportedFormat indicates the file carries no metadata relevant to the extractor
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrFieldNotFound indicates the addressed field is absent from the metadata
	ErrFieldNotFound = errors.New("metadata field not found")

	// ErrCacheMiss indicates the cache backend holds no entry for a key
	ErrCacheMiss = errors.New("cache miss")

	// ErrUnknownExtractor indicates no extractor is registered under the requested id
	ErrUnknownExtractor = errors.New("unknown extractor")

	// ErrNotLoaded indicates an operation requires loaded metadata
	ErrNotLoaded = errors.New("metadata not loaded")

	// ErrUnsupportedOperation indicates the extractor does not support the operation
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrInvalidValue indicates a value the extractor cannot store at the addressed field
	ErrInvalidValue = errors.New("invalid metadata value")
)

// KeyError represents an error resolving a metadata key
type KeyError struct {
	Key Key
	Err error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("resolve key %s: %v", FormatKey(e.Key), e.Err)
}

func (e *KeyError) Unwrap() error {
	return e.Err
}

// StoreError represents an error related to a metadata store operation
type StoreError struct {
	Extractor string
	URI       string
	Op        string
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("metadata operation %s failed for extractor %s on %s: %v", e.Op, e.Extractor, e.URI, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// isNoData reports whether err is one of the expected "no data" outcomes.
func isNoData(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrFieldNotFound) ||
		errors.Is(err, ErrCacheMiss)
}
