// Package imagesize reports image dimensions and format details in the
// shape of PHP's getimagesize: numeric fields 0 to 3 plus bits, channels
// and mime.
package imagesize

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math/bits"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/tendant/file-metadata/pkg/filemeta"
)

// ID is the identifier the extractor registers under
const ID = "getimagesize"

// Field ids
const (
	FieldWidth      = 0
	FieldHeight     = 1
	FieldType       = 2
	FieldDimensions = 3
	FieldBits       = 4
	FieldChannels   = 5
	FieldMime       = 6
)

// Image type codes, as the IMAGETYPE_* constants
const (
	TypeGIF    = 1
	TypeJPEG   = 2
	TypePNG    = 3
	TypeBMP    = 6
	TypeTIFFII = 7
	TypeTIFFMM = 8
	TypeWEBP   = 18
)

var registry = filemeta.Registry{
	Namespaces: []filemeta.NamespaceDef{{
		ID:   0,
		Name: "image",
		Fields: []filemeta.FieldDef{
			{ID: FieldWidth, Name: "Width"},
			{ID: FieldHeight, Name: "Height"},
			{ID: FieldType, Name: "Type"},
			{ID: FieldDimensions, Name: "Dimensions"},
			{ID: FieldBits, Name: "Bits"},
			{ID: FieldChannels, Name: "Channels"},
			{ID: FieldMime, Name: "Mime"},
		},
	}},
}

// Info is the extracted image information
type Info struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Type     int    `json:"type"`
	Bits     int    `json:"bits,omitempty"`
	Channels int    `json:"channels,omitempty"`
	Mime     string `json:"mime"`
}

// Dimensions returns the HTML attribute string for the image size
func (i *Info) Dimensions() string {
	return fmt.Sprintf(`width="%d" height="%d"`, i.Width, i.Height)
}

// Extractor implements filemeta.Extractor. Its values are read-only.
type Extractor struct {
	filemeta.BaseExtractor
}

var _ filemeta.Extractor = (*Extractor)(nil)

// New creates an image size extractor
func New() *Extractor {
	return &Extractor{BaseExtractor: filemeta.NewBaseExtractor(ID, filemeta.MustResolver(registry))}
}

// ExtractFromFile decodes the image header of the file at path
func (e *Extractor) ExtractFromFile(ctx context.Context, path string) (filemeta.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", filemeta.ErrExtraction, err)
	}
	defer f.Close()
	return decode(f)
}

func decode(r io.Reader) (*Info, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(2)

	cfg, format, err := image.DecodeConfig(br)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, filemeta.ErrUnsupportedFormat
		}
		return nil, fmt.Errorf("%w: %w", filemeta.ErrExtraction, err)
	}

	info := &Info{Width: cfg.Width, Height: cfg.Height}
	switch format {
	case "gif":
		info.Type, info.Mime = TypeGIF, "image/gif"
	case "jpeg":
		info.Type, info.Mime = TypeJPEG, "image/jpeg"
	case "png":
		info.Type, info.Mime = TypePNG, "image/png"
	case "bmp":
		info.Type, info.Mime = TypeBMP, "image/bmp"
	case "tiff":
		info.Type, info.Mime = TypeTIFFII, "image/tiff"
		if string(head) == "MM" {
			info.Type = TypeTIFFMM
		}
	case "webp":
		info.Type, info.Mime = TypeWEBP, "image/webp"
	default:
		return nil, filemeta.ErrUnsupportedFormat
	}
	info.Bits, info.Channels = depth(cfg.ColorModel)
	return info, nil
}

// depth derives bits per channel and channel count from a color model
func depth(model color.Model) (int, int) {
	if p, ok := model.(color.Palette); ok {
		if len(p) == 0 {
			return 0, 0
		}
		return bits.Len(uint(len(p) - 1)), 3
	}
	switch model {
	case color.GrayModel:
		return 8, 1
	case color.Gray16Model:
		return 16, 1
	case color.YCbCrModel, color.RGBAModel:
		return 8, 3
	case color.CMYKModel, color.NRGBAModel:
		return 8, 4
	case color.RGBA64Model:
		return 16, 3
	case color.NRGBA64Model:
		return 16, 4
	}
	return 0, 0
}

// Encode serializes the info as JSON
func (e *Extractor) Encode(m filemeta.Metadata) ([]byte, error) {
	info, ok := m.(*Info)
	if !ok || info == nil {
		return nil, fmt.Errorf("%w: expected *imagesize.Info, got %T", filemeta.ErrInvalidValue, m)
	}
	return json.Marshal(info)
}

// Decode restores info encoded by Encode
func (e *Extractor) Decode(data []byte) (filemeta.Metadata, error) {
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to decode image info: %w", err)
	}
	return &info, nil
}

// GetField returns one image property. Bits and channels are absent when
// the color model does not define them.
func (e *Extractor) GetField(m filemeta.Metadata, addr filemeta.Address) (any, bool) {
	info, ok := m.(*Info)
	if !ok || info == nil || addr.Namespace != 0 {
		return nil, false
	}
	switch addr.Field {
	case FieldWidth:
		return info.Width, true
	case FieldHeight:
		return info.Height, true
	case FieldType:
		return info.Type, true
	case FieldDimensions:
		return info.Dimensions(), true
	case FieldBits:
		return info.Bits, info.Bits > 0
	case FieldChannels:
		return info.Channels, info.Channels > 0
	case FieldMime:
		return info.Mime, info.Mime != ""
	}
	return nil, false
}

// SetField is not supported: image properties derive from the pixel data
func (e *Extractor) SetField(m filemeta.Metadata, addr filemeta.Address, value any) (bool, error) {
	return false, filemeta.ErrUnsupportedOperation
}

// RemoveField is not supported
func (e *Extractor) RemoveField(m filemeta.Metadata, addr filemeta.Address) (bool, error) {
	return false, filemeta.ErrUnsupportedOperation
}
