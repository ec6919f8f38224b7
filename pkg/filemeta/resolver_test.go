package filemeta_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/file-metadata/pkg/filemeta"
)

func TestResolverResolve(t *testing.T) {
	r, err := filemeta.NewResolver(testRegistry())
	require.NoError(t, err)

	main := filemeta.Address{Namespace: 0, Field: 0x0112}
	thumb := filemeta.Address{Namespace: 1, Field: 0x0112}

	tests := []struct {
		name string
		key  filemeta.Key
		want filemeta.Address
	}{
		{"bare name uses first namespace", filemeta.Name("Orientation"), main},
		{"alias qualified", filemeta.Qualified{Namespace: "Main", Name: "Orientation"}, main},
		{"canonical qualified", filemeta.Qualified{Namespace: "IFD0", Name: "Orientation"}, main},
		{"second namespace alias", filemeta.Qualified{Namespace: "Thumbnail", Name: "Orientation"}, thumb},
		{"numeric namespace", filemeta.Qualified{Namespace: "1", Name: "Orientation"}, thumb},
		{"qualified id", filemeta.QualifiedID{Namespace: "thumbnail", ID: 0x0112}, thumb},
		{"raw id", filemeta.RawID(0x0112), main},
		{"name only in later namespace", filemeta.Name("ExposureTime"), filemeta.Address{Namespace: 2, Field: 0x829a}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolverCaseInsensitive(t *testing.T) {
	r := filemeta.MustResolver(testRegistry())

	want, err := r.Resolve(filemeta.Name("Orientation"))
	require.NoError(t, err)

	for _, k := range []string{"orientation", "ORIENTATION", "oRiEnTaTiOn"} {
		got, err := r.Resolve(filemeta.Name(k))
		require.NoError(t, err, k)
		assert.Equal(t, want, got, k)
	}

	got, err := r.Resolve(filemeta.Qualified{Namespace: "MAIN", Name: "orientation"})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestResolverErrors(t *testing.T) {
	reg := testRegistry()
	reg.Namespaces = append(reg.Namespaces, filemeta.NamespaceDef{
		ID: 5, Name: "Maker", QualifiedOnly: true,
		Fields: []filemeta.FieldDef{{ID: 0x0001, Name: "MakerVersion"}},
	})
	r := filemeta.MustResolver(reg)

	tests := []struct {
		name string
		key  filemeta.Key
		want error
	}{
		{"unknown name", filemeta.Name("NoSuchTag"), filemeta.ErrUnknownKey},
		{"unknown namespace", filemeta.Qualified{Namespace: "Nope", Name: "Orientation"}, filemeta.ErrUnknownKey},
		{"name not in namespace", filemeta.Qualified{Namespace: "Exif", Name: "Orientation"}, filemeta.ErrUnknownKey},
		{"unknown raw id", filemeta.RawID(0xffff), filemeta.ErrUnknownKey},
		{"qualified only name", filemeta.Name("MakerVersion"), filemeta.ErrAmbiguousKey},
		{"qualified only raw id", filemeta.RawID(0x0001), filemeta.ErrAmbiguousKey},
		{"empty name", filemeta.Name(""), filemeta.ErrInvalidKeySpec},
		{"missing namespace", filemeta.Qualified{Name: "Orientation"}, filemeta.ErrInvalidKeySpec},
		{"nil key", nil, filemeta.ErrInvalidKeySpec},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(tt.key)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			var keyErr *filemeta.KeyError
			assert.True(t, errors.As(err, &keyErr))
		})
	}

	addr, err := r.Resolve(filemeta.Qualified{Namespace: "Maker", Name: "MakerVersion"})
	require.NoError(t, err)
	assert.Equal(t, filemeta.Address{Namespace: 5, Field: 0x0001}, addr)
}

func TestResolverSupportedKeys(t *testing.T) {
	r := filemeta.MustResolver(testRegistry())

	all := r.SupportedKeys("")
	assert.Equal(t, []filemeta.SupportedKey{
		{Namespace: "IFD0", Name: "ImageWidth"},
		{Namespace: "IFD0", Name: "Orientation"},
		{Namespace: "IFD0", Name: "Make"},
		{Namespace: "IFD1", Name: "ImageWidth"},
		{Namespace: "IFD1", Name: "Orientation"},
		{Namespace: "Exif", Name: "ExposureTime"},
	}, all)

	for _, ns := range []string{"IFD1", "ifd1", "exif", "missing"} {
		t.Run(ns, func(t *testing.T) {
			filtered := r.SupportedKeys(ns)
			var want []filemeta.SupportedKey
			for _, k := range all {
				if strings.EqualFold(k.Namespace, ns) {
					want = append(want, k)
				}
			}
			if want == nil {
				assert.Empty(t, filtered)
				return
			}
			assert.Equal(t, want, filtered)
		})
	}
}

func TestResolverFirstRegisteredWins(t *testing.T) {
	r := filemeta.MustResolver(filemeta.Registry{Namespaces: []filemeta.NamespaceDef{
		{ID: 0, Name: "A", Fields: []filemeta.FieldDef{
			{ID: 1, Name: "Title"},
			{ID: 2, Name: "TITLE"},
		}},
	}})

	addr, err := r.Resolve(filemeta.Name("title"))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), addr.Field)
	assert.Len(t, r.SupportedKeys(""), 1)
}

func TestResolverIsolation(t *testing.T) {
	a := filemeta.MustResolver(testRegistry())

	reg := testRegistry()
	reg.Namespaces[0].Fields[1].ID = 0x9999
	b := filemeta.MustResolver(reg)

	addrA, err := a.Resolve(filemeta.Name("Orientation"))
	require.NoError(t, err)
	addrB, err := b.Resolve(filemeta.Name("Orientation"))
	require.NoError(t, err)

	assert.Equal(t, uint32(0x0112), addrA.Field)
	assert.Equal(t, uint32(0x9999), addrB.Field)
}

func TestRegistryWithAliases(t *testing.T) {
	base := testRegistry()
	ext, err := base.WithAliases("ifd0", "Primary")
	require.NoError(t, err)

	r := filemeta.MustResolver(ext)
	addr, err := r.Resolve(filemeta.Qualified{Namespace: "primary", Name: "Orientation"})
	require.NoError(t, err)
	assert.Equal(t, orientationAddr(), addr)

	// the original registry is untouched
	_, err = filemeta.MustResolver(base).Resolve(filemeta.Qualified{Namespace: "Primary", Name: "Orientation"})
	assert.ErrorIs(t, err, filemeta.ErrUnknownKey)

	_, err = base.WithAliases("nope", "x")
	assert.ErrorIs(t, err, filemeta.ErrUnknownKey)
}

func TestNewResolverInvalidRegistry(t *testing.T) {
	t.Run("duplicate namespace id", func(t *testing.T) {
		_, err := filemeta.NewResolver(filemeta.Registry{Namespaces: []filemeta.NamespaceDef{
			{ID: 0, Name: "A"}, {ID: 0, Name: "B"},
		}})
		assert.Error(t, err)
	})

	t.Run("shared alias", func(t *testing.T) {
		_, err := filemeta.NewResolver(filemeta.Registry{Namespaces: []filemeta.NamespaceDef{
			{ID: 0, Name: "A", Aliases: []string{"x"}}, {ID: 1, Name: "B", Aliases: []string{"X"}},
		}})
		assert.Error(t, err)
	})

	t.Run("missing name", func(t *testing.T) {
		_, err := filemeta.NewResolver(filemeta.Registry{Namespaces: []filemeta.NamespaceDef{{ID: 0}}})
		assert.Error(t, err)
	})
}

func TestResolverNamespacesAndLookup(t *testing.T) {
	r := filemeta.MustResolver(testRegistry())

	assert.Equal(t, []filemeta.NamespaceInfo{
		{Name: "IFD0", ID: 0}, {Name: "IFD1", ID: 1}, {Name: "Exif", ID: 2},
	}, r.Namespaces())

	k, ok := r.Lookup(filemeta.Address{Namespace: 1, Field: 0x0100})
	require.True(t, ok)
	assert.Equal(t, filemeta.SupportedKey{Namespace: "IFD1", Name: "ImageWidth"}, k)

	_, ok = r.Lookup(filemeta.Address{Namespace: 2, Field: 0x0112})
	assert.False(t, ok)

	name, ok := r.NamespaceName(2)
	assert.True(t, ok)
	assert.Equal(t, "Exif", name)
}
