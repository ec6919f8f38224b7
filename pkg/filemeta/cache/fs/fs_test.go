package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/file-metadata/pkg/filemeta"
)

func TestFSBackend_BasicOps(t *testing.T) {
	tmp := t.TempDir()
	backend, err := New(Config{BaseDir: tmp})
	require.NoError(t, err)

	ctx := context.Background()
	key := filemeta.CacheKey("exif", filemeta.HashURI("public://photos/a.jpg"))

	_, err = backend.Get(ctx, key)
	assert.ErrorIs(t, err, filemeta.ErrCacheMiss)

	require.NoError(t, backend.Set(ctx, key, []byte("first")))
	require.NoError(t, backend.Set(ctx, key, []byte("second"), "ignored-tag"))

	got, err := backend.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)

	p := backend.path(key)
	entries, err := os.ReadDir(filepath.Dir(p))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	require.NoError(t, backend.Delete(ctx, key))
	_, err = backend.Get(ctx, key)
	assert.ErrorIs(t, err, filemeta.ErrCacheMiss)

	_, err = os.Stat(filepath.Dir(p))
	assert.True(t, os.IsNotExist(err), "empty shard directory removed")

	assert.NoError(t, backend.Delete(ctx, key))
}

func TestFSBackend_TTL(t *testing.T) {
	backend, err := New(Config{BaseDir: t.TempDir(), TTL: time.Hour})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, backend.Set(ctx, "k", []byte("v")))

	_, err = backend.Get(ctx, "k")
	require.NoError(t, err)

	backend.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = backend.Get(ctx, "k")
	assert.ErrorIs(t, err, filemeta.ErrCacheMiss)

	_, err = os.Stat(backend.path("k"))
	assert.True(t, os.IsNotExist(err))
}

func TestFSBackend_RequiresBaseDir(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base directory is required")
}
