// Package exif reads EXIF metadata from JPEG, TIFF and other files that
// embed an EXIF block.
//
// Values are addressed by directory and tag. Get returns string for ASCII
// entries, int or []int for integer entries, Rational or []Rational,
// float64 or []float64, and []byte for BYTE and UNDEFINED entries.
package exif

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	goexif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	"github.com/tendant/file-metadata/pkg/filemeta"
)

// ID is the identifier the extractor registers under
const ID = "exif"

// Extractor implements filemeta.Extractor for EXIF
type Extractor struct {
	filemeta.BaseExtractor
	ifdMapping *exifcommon.IfdMapping
	tagIndex   *goexif.TagIndex
}

var _ filemeta.Extractor = (*Extractor)(nil)

// Metadata is a parsed EXIF block
type Metadata struct {
	raw   []byte
	index goexif.IfdIndex
}

// New creates an EXIF extractor over the built-in tag registry
func New() *Extractor {
	ex, err := NewWithRegistry(DefaultRegistry())
	if err != nil {
		panic(fmt.Sprintf("exif: %v", err))
	}
	return ex
}

// NewWithRegistry creates an EXIF extractor over reg, typically
// DefaultRegistry extended with aliases.
func NewWithRegistry(reg filemeta.Registry) (*Extractor, error) {
	resolver, err := filemeta.NewResolver(reg)
	if err != nil {
		return nil, fmt.Errorf("invalid exif registry: %w", err)
	}
	mapping, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil, fmt.Errorf("failed to load ifd mapping: %w", err)
	}
	return &Extractor{
		BaseExtractor: filemeta.NewBaseExtractor(ID, resolver),
		ifdMapping:    mapping,
		tagIndex:      goexif.NewTagIndex(),
	}, nil
}

// ExtractFromFile locates and parses the EXIF block of a file
func (e *Extractor) ExtractFromFile(ctx context.Context, path string) (filemeta.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", filemeta.ErrExtraction, err)
	}

	raw, err := goexif.SearchAndExtractExif(data)
	if err != nil {
		if errors.Is(err, goexif.ErrNoExif) {
			return nil, filemeta.ErrUnsupportedFormat
		}
		return nil, fmt.Errorf("%w: %w", filemeta.ErrExtraction, err)
	}

	md, err := e.parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", filemeta.ErrExtraction, err)
	}
	return md, nil
}

// Encode serializes the metadata as a standalone EXIF block. Trailing image
// data from the source file is dropped when the block re-encodes cleanly.
func (e *Extractor) Encode(m filemeta.Metadata) ([]byte, error) {
	md, err := asMetadata(m)
	if err != nil {
		return nil, err
	}
	rootIb := goexif.NewIfdBuilderFromExistingChain(md.index.RootIfd)
	if blob, err := goexif.NewIfdByteEncoder().EncodeToExif(rootIb); err == nil {
		return blob, nil
	}
	return append([]byte(nil), md.raw...), nil
}

// Decode restores metadata encoded by Encode
func (e *Extractor) Decode(data []byte) (filemeta.Metadata, error) {
	md, err := e.parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exif metadata: %w", err)
	}
	return md, nil
}

// GetField returns the decoded value of an entry
func (e *Extractor) GetField(m filemeta.Metadata, addr filemeta.Address) (any, bool) {
	md, err := asMetadata(m)
	if err != nil {
		return nil, false
	}
	ite := md.entry(addr)
	if ite == nil {
		return nil, false
	}

	if ite.TagType() == exifcommon.TypeUndefined {
		raw, err := ite.GetRawBytes()
		if err != nil {
			return nil, false
		}
		return raw, true
	}
	v, err := ite.Value()
	if err != nil {
		return nil, false
	}
	return fromNative(v), true
}

// SetField replaces the value of an existing entry. The new value must fit
// the entry's type and is normalized the way GetField reports it, so any Go
// integer kind reads back as int and a plain integer stored in a RATIONAL
// entry reads back as Rational{Num: n, Den: 1}. UNDEFINED entries are
// read-only.
func (e *Extractor) SetField(m filemeta.Metadata, addr filemeta.Address, value any) (bool, error) {
	md, err := asMetadata(m)
	if err != nil {
		return false, err
	}
	ite := md.entry(addr)
	if ite == nil {
		return false, filemeta.ErrFieldNotFound
	}
	if ite.TagType() == exifcommon.TypeUndefined {
		return false, fmt.Errorf("%w: %s is an UNDEFINED entry", filemeta.ErrInvalidValue, ite.TagName())
	}

	native, err := toNative(ite.TagType(), value)
	if err != nil {
		return false, err
	}
	err = e.rebuild(md, addr.Namespace, func(ib *goexif.IfdBuilder) error {
		return ib.SetStandard(uint16(addr.Field), native)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// RemoveField deletes an entry
func (e *Extractor) RemoveField(m filemeta.Metadata, addr filemeta.Address) (bool, error) {
	md, err := asMetadata(m)
	if err != nil {
		return false, err
	}
	if md.entry(addr) == nil {
		return false, nil
	}
	err = e.rebuild(md, addr.Namespace, func(ib *goexif.IfdBuilder) error {
		return ib.DeleteFirst(uint16(addr.Field))
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (e *Extractor) parse(raw []byte) (*Metadata, error) {
	_, index, err := goexif.Collect(e.ifdMapping, e.tagIndex, raw)
	if err != nil {
		return nil, err
	}
	if index.RootIfd == nil {
		return nil, errors.New("no root directory")
	}
	return &Metadata{raw: raw, index: index}, nil
}

// rebuild applies change to the builder of directory ns, re-encodes the
// block and replaces md with the result.
func (e *Extractor) rebuild(md *Metadata, ns int, change func(*goexif.IfdBuilder) error) error {
	path, ok := ifdPaths[ns]
	if !ok {
		return filemeta.ErrFieldNotFound
	}

	rootIb := goexif.NewIfdBuilderFromExistingChain(md.index.RootIfd)
	ib, err := goexif.GetOrCreateIbFromRootIb(rootIb, path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	if err := change(ib); err != nil {
		return fmt.Errorf("%w: %w", filemeta.ErrInvalidValue, err)
	}

	raw, err := goexif.NewIfdByteEncoder().EncodeToExif(rootIb)
	if err != nil {
		return fmt.Errorf("%w: %w", filemeta.ErrInvalidValue, err)
	}
	next, err := e.parse(raw)
	if err != nil {
		return fmt.Errorf("failed to reparse exif block: %w", err)
	}
	*md = *next
	return nil
}

func (m *Metadata) directory(ns int) *goexif.Ifd {
	root := m.index.RootIfd
	switch ns {
	case IFD0:
		return root
	case IFD1:
		return root.NextIfd()
	case ExifIFD:
		return childIfd(root, exifcommon.IfdExifStandardIfdIdentity)
	case GPSIFD:
		return childIfd(root, exifcommon.IfdGpsInfoStandardIfdIdentity)
	case InteropIFD:
		return childIfd(childIfd(root, exifcommon.IfdExifStandardIfdIdentity), exifcommon.IfdExifIopStandardIfdIdentity)
	}
	return nil
}

func childIfd(ifd *goexif.Ifd, ii *exifcommon.IfdIdentity) *goexif.Ifd {
	if ifd == nil {
		return nil
	}
	child, err := ifd.ChildWithIfdPath(ii)
	if err != nil {
		return nil
	}
	return child
}

func (m *Metadata) entry(addr filemeta.Address) *goexif.IfdTagEntry {
	if addr.Field > math.MaxUint16 {
		return nil
	}
	ifd := m.directory(addr.Namespace)
	if ifd == nil {
		return nil
	}
	results, err := ifd.FindTagWithId(uint16(addr.Field))
	if err != nil || len(results) == 0 {
		return nil
	}
	return results[0]
}

func asMetadata(m filemeta.Metadata) (*Metadata, error) {
	md, ok := m.(*Metadata)
	if !ok || md == nil {
		return nil, fmt.Errorf("%w: expected *exif.Metadata, got %T", filemeta.ErrInvalidValue, m)
	}
	return md, nil
}
