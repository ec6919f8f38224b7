package filemeta_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/file-metadata/pkg/filemeta"
)

func TestManagerCreation(t *testing.T) {
	tests := []struct {
		name        string
		options     func(t *testing.T) []filemeta.Option
		expectError bool
	}{
		{
			name:        "no extractors should fail",
			options:     func(t *testing.T) []filemeta.Option { return nil },
			expectError: true,
		},
		{
			name: "one extractor should succeed",
			options: func(t *testing.T) []filemeta.Option {
				return []filemeta.Option{filemeta.WithExtractor(newFakeExtractor(t, "a"))}
			},
		},
		{
			name: "duplicate extractor id should fail",
			options: func(t *testing.T) []filemeta.Option {
				return []filemeta.Option{
					filemeta.WithExtractor(newFakeExtractor(t, "a")),
					filemeta.WithExtractor(newFakeExtractor(t, "a")),
				}
			},
			expectError: true,
		},
		{
			name: "empty extractor id should fail",
			options: func(t *testing.T) []filemeta.Option {
				return []filemeta.Option{filemeta.WithExtractor(newFakeExtractor(t, ""))}
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := filemeta.New(tt.options(t)...)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, m)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, m)
			}
		})
	}
}

func TestManagerUseReturnsSameSession(t *testing.T) {
	m, _ := newTestManager(t, nil)

	a := m.Use("public://photos/a.jpg")
	b := m.Use("public://photos/a.jpg")
	assert.Same(t, a, b)
	assert.Equal(t, 1, m.Count())
	assert.Equal(t, filemeta.HashURI("public://photos/a.jpg"), a.Hash())
	assert.Equal(t, "public://photos/a.jpg", a.URI())

	c := m.Use("public://photos/A.jpg")
	assert.NotSame(t, a, c, "URIs are compared byte for byte")
	assert.Equal(t, 2, m.Count())
}

func TestManagerReleaseCreatesFreshSession(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, nil)
	path := writeSource(t, "Orientation=1")

	s := m.Use(path)
	_, err := s.LoadMetadataFromFile(ctx, exID)
	require.NoError(t, err)
	_, err = s.SetMetadata(exID, filemeta.Name("Orientation"), "8")
	require.NoError(t, err)

	assert.True(t, m.Has(path))
	assert.True(t, m.Release(path))
	assert.False(t, m.Has(path))
	assert.Equal(t, 0, m.Count())

	fresh := m.Use(path)
	assert.NotSame(t, s, fresh)
	assert.NotEqual(t, s.ID(), fresh.ID())

	v, found, err := fresh.GetMetadata(ctx, exID, filemeta.Name("Orientation"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1", v, "old mutations are gone")
}

func TestManagerReleaseUnknown(t *testing.T) {
	m, _ := newTestManager(t, nil)
	m.Use("a")
	m.Use("b")

	assert.False(t, m.Release("never-seen"))
	assert.Equal(t, 2, m.Count())
	assert.False(t, m.Has("never-seen"))
}

func TestSessionUnknownExtractor(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, nil)
	s := m.Use(writeSource(t, "Orientation=1"))

	_, _, err := s.GetMetadata(ctx, exID, nil)
	require.NoError(t, err)
	existing, err := s.Store(exID)
	require.NoError(t, err)

	_, _, err = s.GetMetadata(ctx, "missing", filemeta.Name("Orientation"))
	assert.ErrorIs(t, err, filemeta.ErrUnknownExtractor)
	_, err = s.SetMetadata("missing", filemeta.Name("Orientation"), 1)
	assert.ErrorIs(t, err, filemeta.ErrUnknownExtractor)
	_, err = s.SupportedKeys("missing", "")
	assert.ErrorIs(t, err, filemeta.ErrUnknownExtractor)
	_, err = s.SaveMetadataToCache(ctx, "missing")
	assert.ErrorIs(t, err, filemeta.ErrUnknownExtractor)

	assert.Equal(t, []string{exID}, s.Stores())
	again, err := s.Store(exID)
	require.NoError(t, err)
	assert.Same(t, existing, again)
	assert.Equal(t, filemeta.FromFile, again.Provenance())
}

func TestSessionSupportedKeys(t *testing.T) {
	m, _ := newTestManager(t, nil)
	s := m.Use("x")

	all, err := s.SupportedKeys(exID, "")
	require.NoError(t, err)
	assert.Len(t, all, 6)

	thumb, err := s.SupportedKeys(exID, "ifd1")
	require.NoError(t, err)
	assert.Equal(t, []filemeta.SupportedKey{
		{Namespace: "IFD1", Name: "ImageWidth"},
		{Namespace: "IFD1", Name: "Orientation"},
	}, thumb)
}

func TestSessionWritePath(t *testing.T) {
	m, _ := newTestManager(t, nil)

	path, err := m.Use("/data/a.jpg").WritePath()
	require.NoError(t, err)
	assert.Equal(t, "/data/a.jpg", path)

	path, err = m.Use("file:///data/b.jpg").WritePath()
	require.NoError(t, err)
	assert.Equal(t, "/data/b.jpg", path)

	remote := m.Use("s3://bucket/c.jpg")
	_, err = remote.WritePath()
	assert.ErrorIs(t, err, filemeta.ErrSourceNotFound)

	remote.SetLocalPath("/tmp/c.jpg")
	path, err = remote.WritePath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/c.jpg", path)
}

func TestManagerExtractors(t *testing.T) {
	m, err := filemeta.New(
		filemeta.WithExtractor(newFakeExtractor(t, "zeta")),
		filemeta.WithExtractor(newFakeExtractor(t, "alpha")),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, m.Extractors())

	ex, err := m.Extractor("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", ex.ID())

	_, err = m.Extractor("beta")
	assert.ErrorIs(t, err, filemeta.ErrUnknownExtractor)
}

func TestManagerConcurrentUse(t *testing.T) {
	m, _ := newTestManager(t, nil)

	var wg sync.WaitGroup
	sessions := make([]*filemeta.Session, 50)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := m.Use(fmt.Sprintf("uri-%d", i%5))
			_, _ = s.Store(exID)
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, m.Count())
	for i := range sessions {
		assert.Same(t, sessions[i%5], sessions[i])
	}
}

func TestHashURI(t *testing.T) {
	h := filemeta.HashURI("public://a.jpg")
	assert.Len(t, string(h), 64)
	assert.Equal(t, h, filemeta.HashURI("public://a.jpg"))
	assert.NotEqual(t, h, filemeta.HashURI("public://b.jpg"))
	assert.Equal(t, "hash:exif:"+string(h), filemeta.CacheKey("exif", h))
}
