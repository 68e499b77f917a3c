package processor

import (
	"errors"
	"fmt"
	"image"
	"io"
	"sort"

	"github.com/disintegration/imaging"
	"github.com/ds124wfegd/tile-overlay/internal/entity"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTileSize      = 1000
	DefaultPixelGridSize = 3
	DefaultDisplayName   = "My Template"
)

var ErrMissingInput = errors.New("template image or coordinates missing")

// Fragment is the part of a template's upscaled overlay that lands on one tile.
// Its bitmap already has the size of the upscaled tile, so X and Y stay at 0.
type Fragment struct {
	Bitmap *image.NRGBA
	X      int
	Y      int
}

type Template struct {
	DisplayName   string
	Coords        *entity.Coordinate
	TileSize      int
	PixelGridSize int
	PixelCount    int

	Chunks       map[string]*Fragment
	ChunksBase64 map[string]string
}

type Option func(*Template)

func WithTileSize(size int) Option {
	return func(t *Template) { t.TileSize = size }
}

// WithPixelGridSize sets the per-pixel magnification. It must be odd so the
// source pixel sits in the middle of its block.
func WithPixelGridSize(n int) Option {
	return func(t *Template) { t.PixelGridSize = n }
}

func NewTemplate(displayName string, coords *entity.Coordinate, opts ...Option) (*Template, error) {
	if displayName == "" {
		displayName = DefaultDisplayName
	}
	t := &Template{
		DisplayName:   displayName,
		Coords:        coords,
		TileSize:      DefaultTileSize,
		PixelGridSize: DefaultPixelGridSize,
		Chunks:        make(map[string]*Fragment),
		ChunksBase64:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.TileSize <= 0 {
		return nil, fmt.Errorf("tile size must be positive, got %d", t.TileSize)
	}
	if t.PixelGridSize <= 0 || t.PixelGridSize%2 == 0 {
		return nil, fmt.Errorf("pixel grid size must be a positive odd number, got %d", t.PixelGridSize)
	}
	return t, nil
}

// Process decodes src and splits it into per-tile fragments.
func (t *Template) Process(src io.Reader) error {
	if src == nil || t.Coords == nil {
		return ErrMissingInput
	}
	img, err := DecodeNRGBA(src)
	if err != nil {
		return fmt.Errorf("decode template image: %w", err)
	}
	return t.ProcessImage(img)
}

func (t *Template) ProcessImage(src image.Image) error {
	if src == nil || t.Coords == nil {
		return ErrMissingInput
	}
	pix, ok := src.(*image.NRGBA)
	if !ok || pix.Rect.Min != (image.Point{}) {
		pix = imaging.Clone(src)
	}

	width, height := pix.Rect.Dx(), pix.Rect.Dy()
	opaque := 0
	for y := 0; y < height; y++ {
		row := pix.Pix[y*pix.Stride : y*pix.Stride+width*4]
		for i := 3; i < len(row); i += 4 {
			if row[i] > 0 {
				opaque++
			}
		}
	}
	t.PixelCount = opaque
	logrus.WithFields(logrus.Fields{
		"template": t.DisplayName,
		"width":    width,
		"height":   height,
		"pixels":   opaque,
	}).Info("Template analysed")

	n := t.PixelGridSize
	half := n / 2
	side := t.TileSize * n
	canvases := make(map[string]*image.NRGBA)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			s := y*pix.Stride + x*4
			if pix.Pix[s+3] == 0 {
				continue
			}

			globalX := t.Coords.PixelX + x
			globalY := t.Coords.PixelY + y
			key := entity.TileKey(
				t.Coords.TileX+globalX/t.TileSize,
				t.Coords.TileY+globalY/t.TileSize,
			)
			localX := globalX % t.TileSize
			localY := globalY % t.TileSize

			canvas, ok := canvases[key]
			if !ok {
				canvas = image.NewNRGBA(image.Rect(0, 0, side, side))
				canvases[key] = canvas
			}
			d := canvas.PixOffset(localX*n+half, localY*n+half)
			copy(canvas.Pix[d:d+4], pix.Pix[s:s+4])
		}
	}

	for key, canvas := range canvases {
		encoded, err := EncodeBase64PNG(canvas)
		if err != nil {
			return fmt.Errorf("encode fragment %s: %w", key, err)
		}
		t.Chunks[key] = &Fragment{Bitmap: canvas}
		t.ChunksBase64[key] = encoded
	}
	return nil
}

// TileKeys returns the keys of every tile the template touches, sorted.
func (t *Template) TileKeys() []string {
	keys := make([]string, 0, len(t.Chunks))
	for k := range t.Chunks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (t *Template) Record() entity.TemplateRecord {
	var coords []int
	if t.Coords != nil {
		coords = t.Coords.Slice()
	}
	return entity.TemplateRecord{
		DisplayName:  t.DisplayName,
		Coords:       coords,
		ChunksBase64: t.ChunksBase64,
		PixelCount:   t.PixelCount,
	}
}

// FromRecord rebuilds a template from its persisted form. Fragments that fail
// to decode are skipped and returned as errors alongside the template.
func FromRecord(rec entity.TemplateRecord, opts ...Option) (*Template, []error) {
	var coords *entity.Coordinate
	if c, err := entity.CoordinateFromSlice(rec.Coords); err == nil {
		coords = &c
	}
	t, err := NewTemplate(rec.DisplayName, coords, opts...)
	if err != nil {
		return nil, []error{err}
	}
	t.PixelCount = rec.PixelCount

	var errs []error
	for key, data := range rec.ChunksBase64 {
		if _, err := entity.ParseTileKey(key); err != nil {
			errs = append(errs, err)
			continue
		}
		bitmap, err := DecodeBase64PNG(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("fragment %s of %q: %w", key, rec.DisplayName, err))
			continue
		}
		t.Chunks[key] = &Fragment{Bitmap: bitmap}
		t.ChunksBase64[key] = data
	}
	return t, errs
}
