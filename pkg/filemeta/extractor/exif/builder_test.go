package exif

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TIFF field types and sub-directory pointer tags used by the fixtures
const (
	typeASCII     uint16 = 2
	typeShort     uint16 = 3
	typeLong      uint16 = 4
	typeRational  uint16 = 5
	typeUndefined uint16 = 7

	tagExifPointer    = 0x8769
	tagGPSPointer     = 0x8825
	tagInteropPointer = 0xa005
)

// testEntry is a directory entry whose data is already in the target byte order
type testEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

type tiffBuilder struct {
	order binary.ByteOrder
	dirs  map[int][]testEntry
}

func newTIFFBuilder(order binary.ByteOrder) *tiffBuilder {
	return &tiffBuilder{order: order, dirs: map[int][]testEntry{}}
}

func (b *tiffBuilder) ascii(ns int, tag uint16, s string) *tiffBuilder {
	data := append([]byte(s), 0)
	b.dirs[ns] = append(b.dirs[ns], testEntry{tag: tag, typ: typeASCII, count: uint32(len(data)), data: data})
	return b
}

func (b *tiffBuilder) short(ns int, tag uint16, vals ...uint16) *tiffBuilder {
	data := make([]byte, 2*len(vals))
	for i, v := range vals {
		b.order.PutUint16(data[2*i:], v)
	}
	b.dirs[ns] = append(b.dirs[ns], testEntry{tag: tag, typ: typeShort, count: uint32(len(vals)), data: data})
	return b
}

func (b *tiffBuilder) rational(ns int, tag uint16, pairs ...uint32) *tiffBuilder {
	data := make([]byte, 4*len(pairs))
	for i, v := range pairs {
		b.order.PutUint32(data[4*i:], v)
	}
	b.dirs[ns] = append(b.dirs[ns], testEntry{tag: tag, typ: typeRational, count: uint32(len(pairs) / 2), data: data})
	return b
}

func (b *tiffBuilder) undefined(ns int, tag uint16, data []byte) *tiffBuilder {
	b.dirs[ns] = append(b.dirs[ns], testEntry{tag: tag, typ: typeUndefined, count: uint32(len(data)), data: data})
	return b
}

func dirSize(entries []testEntry) uint32 {
	size := uint32(2 + 12*len(entries) + 4)
	for _, e := range entries {
		if len(e.data) > 4 {
			size += uint32(len(e.data)+1) &^ 1
		}
	}
	return size
}

// build lays the directories out in namespace order and links the
// sub-directories through their pointer tags.
func (b *tiffBuilder) build() []byte {
	dirs := map[int][]testEntry{}
	for ns, entries := range b.dirs {
		dirs[ns] = append([]testEntry(nil), entries...)
	}
	pointers := []struct {
		parent, child int
		tag           uint16
	}{
		{IFD0, ExifIFD, tagExifPointer},
		{IFD0, GPSIFD, tagGPSPointer},
		{ExifIFD, InteropIFD, tagInteropPointer},
	}
	for _, p := range pointers {
		if _, ok := dirs[p.child]; ok {
			dirs[p.parent] = append(dirs[p.parent], testEntry{tag: p.tag, typ: typeLong, count: 1, data: make([]byte, 4)})
		}
	}

	var sequence []int
	for _, ns := range []int{IFD0, IFD1, ExifIFD, GPSIFD, InteropIFD} {
		if _, ok := dirs[ns]; ok {
			sequence = append(sequence, ns)
		}
	}

	offsets := map[int]uint32{}
	off := uint32(8)
	for _, ns := range sequence {
		offsets[ns] = off
		off += dirSize(dirs[ns])
	}
	for _, p := range pointers {
		child, ok := offsets[p.child]
		if !ok {
			continue
		}
		for i, e := range dirs[p.parent] {
			if e.tag == p.tag {
				b.order.PutUint32(dirs[p.parent][i].data, child)
			}
		}
	}

	buf := make([]byte, off)
	if b.order == binary.BigEndian {
		copy(buf, "MM")
	} else {
		copy(buf, "II")
	}
	b.order.PutUint16(buf[2:], 42)
	b.order.PutUint32(buf[4:], 8)

	for _, ns := range sequence {
		o := offsets[ns]
		entries := dirs[ns]
		b.order.PutUint16(buf[o:], uint16(len(entries)))
		dataOff := o + 2 + 12*uint32(len(entries)) + 4
		for j, e := range entries {
			p := o + 2 + 12*uint32(j)
			b.order.PutUint16(buf[p:], e.tag)
			b.order.PutUint16(buf[p+2:], e.typ)
			b.order.PutUint32(buf[p+4:], e.count)
			if len(e.data) <= 4 {
				copy(buf[p+8:], e.data)
				continue
			}
			b.order.PutUint32(buf[p+8:], dataOff)
			copy(buf[dataOff:], e.data)
			dataOff += uint32(len(e.data)+1) &^ 1
		}
		var next uint32
		if ns == IFD0 {
			next = offsets[IFD1]
		}
		b.order.PutUint32(buf[o+2+12*uint32(len(entries)):], next)
	}
	return buf
}

// buildJPEG wraps a TIFF stream in a minimal JPEG with an APP0 and an APP1
// Exif segment. A nil stream produces a JPEG without EXIF.
func buildJPEG(tiff []byte) []byte {
	out := []byte{0xff, 0xd8}
	app0 := []byte("JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")
	out = append(out, 0xff, 0xe0, byte((len(app0)+2)>>8), byte(len(app0)+2))
	out = append(out, app0...)
	if tiff != nil {
		payload := append([]byte("Exif\x00\x00"), tiff...)
		out = append(out, 0xff, 0xe1, byte((len(payload)+2)>>8), byte(len(payload)+2))
		out = append(out, payload...)
	}
	out = append(out, 0xff, 0xda, 0x00, 0x02)
	out = append(out, 0xff, 0xd9)
	return out
}

func sampleTIFF(order binary.ByteOrder) []byte {
	return newTIFFBuilder(order).
		ascii(IFD0, 0x010f, "Canon").
		ascii(IFD0, 0x0110, "Canon EOS 5D").
		short(IFD0, 0x0112, 1).
		rational(IFD0, 0x011a, 72, 1).
		short(IFD1, 0x0112, 8).
		rational(ExifIFD, 0x829a, 1, 250).
		short(ExifIFD, 0x8827, 400).
		undefined(ExifIFD, 0x9000, []byte("0230")).
		ascii(GPSIFD, 0x0001, "N").
		rational(GPSIFD, 0x0002, 52, 1, 31, 1, 12, 1).
		ascii(InteropIFD, 0x0001, "R98").
		build()
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}
