// Package sidecar keeps user metadata in a YAML file next to the source
// file. It is the writable extractor: changes are persisted by
// SaveMetadataToFile.
//
// A photo at /srv/media/a.jpg has its sidecar at /srv/media/a.jpg.yml:
//
//	dc:
//	  title: Harbour at dusk
//	  creator: J. Doe
//	photo:
//	  rating: 4
package sidecar

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/tendant/file-metadata/pkg/filemeta"
	"gopkg.in/yaml.v3"
)

// ID is the identifier the extractor registers under
const ID = "sidecar"

// Suffix is appended to the source path to locate the sidecar file
const Suffix = ".yml"

// Namespaces
const (
	DublinCore = 0
	Photo      = 1
)

var registry = filemeta.Registry{
	Namespaces: []filemeta.NamespaceDef{
		{
			ID:      DublinCore,
			Name:    "dc",
			Aliases: []string{"dublincore"},
			Fields: []filemeta.FieldDef{
				{ID: 1, Name: "title"},
				{ID: 2, Name: "creator"},
				{ID: 3, Name: "subject"},
				{ID: 4, Name: "description"},
				{ID: 5, Name: "rights"},
				{ID: 6, Name: "date"},
				{ID: 7, Name: "language"},
			},
		},
		{
			ID:   Photo,
			Name: "photo",
			Fields: []filemeta.FieldDef{
				{ID: 1, Name: "caption"},
				{ID: 2, Name: "location"},
				{ID: 3, Name: "rating"},
				{ID: 4, Name: "keywords"},
				{ID: 5, Name: "album"},
			},
		},
	},
}

// Document is the content of a sidecar file: namespace name to field name
// to value. Keys of registered fields use their canonical spelling.
type Document map[string]map[string]any

// Extractor implements filemeta.Extractor over sidecar files
type Extractor struct {
	filemeta.BaseExtractor
}

var _ filemeta.Extractor = (*Extractor)(nil)

// New creates a sidecar extractor
func New() *Extractor {
	return &Extractor{BaseExtractor: filemeta.NewBaseExtractor(ID, filemeta.MustResolver(registry))}
}

// Path returns the sidecar path for a source file
func Path(source string) string {
	return source + Suffix
}

// ExtractFromFile reads the sidecar of the file at path. A missing sidecar
// yields an empty document so fields can be added to it.
func (e *Extractor) ExtractFromFile(ctx context.Context, path string) (filemeta.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(Path(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Document{}, nil
		}
		return nil, fmt.Errorf("%w: %w", filemeta.ErrExtraction, err)
	}

	doc, err := e.parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: sidecar %s: %w", filemeta.ErrExtraction, Path(path), err)
	}
	return doc, nil
}

// parse decodes YAML and canonicalizes namespace and field names
func (e *Extractor) parse(data []byte) (Document, error) {
	var raw map[string]map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	doc := Document{}
	for ns, fields := range raw {
		for name, value := range fields {
			cns, cname := e.canonical(ns, name)
			if doc[cns] == nil {
				doc[cns] = map[string]any{}
			}
			doc[cns][cname] = value
		}
	}
	return doc, nil
}

func (e *Extractor) canonical(ns, name string) (string, string) {
	addr, err := e.Resolver().Resolve(filemeta.Qualified{Namespace: ns, Name: name})
	if err != nil {
		return ns, name
	}
	key, _ := e.Resolver().Lookup(addr)
	return key.Namespace, key.Name
}

// Encode serializes the document as YAML
func (e *Extractor) Encode(m filemeta.Metadata) ([]byte, error) {
	doc, err := asDocument(m)
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}

// Decode restores a document encoded by Encode
func (e *Extractor) Decode(data []byte) (filemeta.Metadata, error) {
	doc, err := e.parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode sidecar document: %w", err)
	}
	return doc, nil
}

// GetField returns a field value
func (e *Extractor) GetField(m filemeta.Metadata, addr filemeta.Address) (any, bool) {
	doc, err := asDocument(m)
	if err != nil {
		return nil, false
	}
	key, ok := e.Resolver().Lookup(addr)
	if !ok {
		return nil, false
	}
	v, ok := doc[key.Namespace][key.Name]
	return v, ok
}

// SetField stores a scalar or a list of strings, creating the field if needed
func (e *Extractor) SetField(m filemeta.Metadata, addr filemeta.Address, value any) (bool, error) {
	doc, err := asDocument(m)
	if err != nil {
		return false, err
	}
	key, ok := e.Resolver().Lookup(addr)
	if !ok {
		return false, filemeta.ErrFieldNotFound
	}

	switch value.(type) {
	case string, bool, int, int64, float64, []string:
	default:
		return false, fmt.Errorf("%w: %T for %s:%s", filemeta.ErrInvalidValue, value, key.Namespace, key.Name)
	}

	if doc[key.Namespace] == nil {
		doc[key.Namespace] = map[string]any{}
	}
	doc[key.Namespace][key.Name] = value
	return true, nil
}

// RemoveField deletes a field
func (e *Extractor) RemoveField(m filemeta.Metadata, addr filemeta.Address) (bool, error) {
	doc, err := asDocument(m)
	if err != nil {
		return false, err
	}
	key, ok := e.Resolver().Lookup(addr)
	if !ok {
		return false, nil
	}
	fields := doc[key.Namespace]
	if _, ok := fields[key.Name]; !ok {
		return false, nil
	}
	delete(fields, key.Name)
	if len(fields) == 0 {
		delete(doc, key.Namespace)
	}
	return true, nil
}

// CanWriteToFile reports true
func (e *Extractor) CanWriteToFile() bool {
	return true
}

// WriteToFile replaces the sidecar of the file at path. An empty document
// removes the sidecar.
func (e *Extractor) WriteToFile(ctx context.Context, m filemeta.Metadata, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	doc, err := asDocument(m)
	if err != nil {
		return false, err
	}

	target := Path(path)
	if len(doc) == 0 {
		if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
			return false, fmt.Errorf("failed to remove sidecar: %w", err)
		}
		return true, nil
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("failed to encode sidecar: %w", err)
	}

	// Write to a temp file in the same directory, then rename
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*")
	if err != nil {
		return false, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return false, fmt.Errorf("failed to write sidecar: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("failed to write sidecar: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return false, fmt.Errorf("failed to replace sidecar: %w", err)
	}
	return true, nil
}

// Fields lists the populated fields as namespace:name keys, sorted
func (d Document) Fields() []string {
	var out []string
	for ns, fields := range d {
		for name := range fields {
			out = append(out, ns+":"+name)
		}
	}
	sort.Strings(out)
	return out
}

func asDocument(m filemeta.Metadata) (Document, error) {
	switch doc := m.(type) {
	case Document:
		if doc != nil {
			return doc, nil
		}
	case map[string]map[string]any:
		if doc != nil {
			return Document(doc), nil
		}
	}
	return nil, fmt.Errorf("%w: expected sidecar.Document, got %T", filemeta.ErrInvalidValue, m)
}
