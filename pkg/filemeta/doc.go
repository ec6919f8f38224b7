// Package filemeta provides a per-file metadata cache and dispatch layer with
// pluggable extractors and cache backends.
//
// A Manager maps each file URI to a Session. A Session owns one Store per
// extractor, created on first use. A Store loads its extractor's metadata
// lazily, first from the cache backend and then from the source file, and
// tracks where the metadata came from and whether it changed, so cache
// entries are only rewritten when their content is stale.
//
// # Keys
//
// Fields are addressed by symbolic keys: a bare name ("Orientation"), a raw
// numeric id (RawID(0x0112)), or a namespace-qualified name or id
// (Qualified{"Main", "Orientation"}). A Resolver built from a Registry maps
// keys to (namespace, field) addresses. Names and namespace aliases match
// case-insensitively; a bare name resolves to the first registered namespace
// that defines it.
//
// # No data
//
// Absence of data is not an error: a file without relevant metadata, a cache
// miss, or a missing field all yield found=false or applied=false. Resolution
// failures, extraction failures and API misuse are returned as errors that
// can be tested with errors.Is against the sentinel errors of this package.
//
// Implementations of cache backends (memory, filesystem, Redis, Postgres,
// MongoDB, S3, SQLite) and extractors (exif, imagesize, sidecar) are
// provided under subpackages.
package filemeta
