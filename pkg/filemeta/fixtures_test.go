package filemeta_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tendant/file-metadata/pkg/filemeta"
)

func testRegistry() filemeta.Registry {
	return filemeta.Registry{Namespaces: []filemeta.NamespaceDef{
		{ID: 0, Name: "IFD0", Aliases: []string{"Main"}, Fields: []filemeta.FieldDef{
			{ID: 0x0100, Name: "ImageWidth"},
			{ID: 0x0112, Name: "Orientation"},
			{ID: 0x010f, Name: "Make"},
		}},
		{ID: 1, Name: "IFD1", Aliases: []string{"Thumbnail"}, Fields: []filemeta.FieldDef{
			{ID: 0x0100, Name: "ImageWidth"},
			{ID: 0x0112, Name: "Orientation"},
		}},
		{ID: 2, Name: "Exif", Fields: []filemeta.FieldDef{
			{ID: 0x829a, Name: "ExposureTime"},
		}},
	}}
}

// fakeMeta keys values by Address.String().
type fakeMeta map[string]any

// fakeExtractor parses "Name=value" lines through the resolver's default
// namespace. An empty file holds no data; a file starting with "!" is corrupt.
type fakeExtractor struct {
	filemeta.BaseExtractor
	writable bool

	mu       sync.Mutex
	extracts int
	writes   int
}

func newFakeExtractor(t *testing.T, id string) *fakeExtractor {
	t.Helper()
	r, err := filemeta.NewResolver(testRegistry())
	require.NoError(t, err)
	return &fakeExtractor{BaseExtractor: filemeta.NewBaseExtractor(id, r)}
}

func (f *fakeExtractor) ExtractFromFile(ctx context.Context, path string) (filemeta.Metadata, error) {
	f.mu.Lock()
	f.extracts++
	f.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, filemeta.ErrUnsupportedFormat
	}
	if strings.HasPrefix(text, "!") {
		return nil, errors.New("corrupt header")
	}
	m := fakeMeta{}
	for _, line := range strings.Split(text, "\n") {
		name, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		addr, err := f.Resolver().Resolve(filemeta.Name(name))
		if err != nil {
			return nil, err
		}
		m[addr.String()] = value
	}
	return m, nil
}

func (f *fakeExtractor) Encode(m filemeta.Metadata) ([]byte, error) {
	return json.Marshal(m)
}

func (f *fakeExtractor) Decode(data []byte) (filemeta.Metadata, error) {
	m := fakeMeta{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (f *fakeExtractor) GetField(m filemeta.Metadata, addr filemeta.Address) (any, bool) {
	v, ok := m.(fakeMeta)[addr.String()]
	return v, ok
}

func (f *fakeExtractor) SetField(m filemeta.Metadata, addr filemeta.Address, value any) (bool, error) {
	fm := m.(fakeMeta)
	if _, ok := fm[addr.String()]; !ok {
		return false, filemeta.ErrFieldNotFound
	}
	fm[addr.String()] = value
	return true, nil
}

func (f *fakeExtractor) RemoveField(m filemeta.Metadata, addr filemeta.Address) (bool, error) {
	fm := m.(fakeMeta)
	if _, ok := fm[addr.String()]; !ok {
		return false, nil
	}
	delete(fm, addr.String())
	return true, nil
}

func (f *fakeExtractor) CanWriteToFile() bool {
	return f.writable
}

func (f *fakeExtractor) WriteToFile(ctx context.Context, m filemeta.Metadata, path string) (bool, error) {
	if !f.writable {
		return false, filemeta.ErrUnsupportedOperation
	}
	f.mu.Lock()
	f.writes++
	f.mu.Unlock()

	var b strings.Builder
	for k, v := range m.(fakeMeta) {
		fmt.Fprintf(&b, "%s=%v\n", k, v)
	}
	return true, os.WriteFile(path, []byte(b.String()), 0o644)
}

func (f *fakeExtractor) extractCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.extracts
}

// countingCache is an in-memory CacheBackend recording calls.
type countingCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	tags    map[string][]string
	gets    int
	sets    int
	failGet error
}

func newCountingCache() *countingCache {
	return &countingCache{entries: map[string][]byte{}, tags: map[string][]string{}}
}

func (c *countingCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.failGet != nil {
		return nil, c.failGet
	}
	v, ok := c.entries[key]
	if !ok {
		return nil, filemeta.ErrCacheMiss
	}
	return v, nil
}

func (c *countingCache) Set(ctx context.Context, key string, value []byte, tags ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.entries[key] = value
	c.tags[key] = tags
	return nil
}

func (c *countingCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *countingCache) setCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}

func (c *countingCache) getCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gets
}

func writeSource(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "photo.jpg")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func orientationAddr() filemeta.Address {
	return filemeta.Address{Namespace: 0, Field: 0x0112}
}
