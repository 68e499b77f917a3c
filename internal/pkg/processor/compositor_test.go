package processor

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/ds124wfegd/tile-overlay/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompositeTile(t *testing.T) {
	gray := color.NRGBA{R: 90, G: 90, B: 90, A: 255}
	tile := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	fillImageWithColor(tile, gray)
	tile.SetNRGBA(1, 1, color.NRGBA{R: 5, G: 6, B: 7, A: 255})

	red := color.NRGBA{R: 255, A: 255}
	blue := color.NRGBA{B: 255, A: 255}

	first := processedTemplate(t, 2, map[image.Point]color.NRGBA{{0, 0}: red, {1, 0}: red})
	second := processedTemplate(t, 2, map[image.Point]color.NRGBA{{0, 0}: blue})

	out, err := CompositeTile(encodeTestPNG(t, tile), []*Fragment{first.Chunks["0,0"], second.Chunks["0,0"]})
	require.NoError(t, err)

	got, err := DecodeNRGBA(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 6, 6), got.Bounds())

	// later fragments draw on top
	assert.Equal(t, blue, got.NRGBAAt(1, 1))
	assert.Equal(t, red, got.NRGBAAt(4, 1))

	// grid borders keep the magnified tile underneath
	assert.Equal(t, gray, got.NRGBAAt(0, 0))
	assert.Equal(t, gray, got.NRGBAAt(2, 2))
	assert.Equal(t, gray, got.NRGBAAt(1, 4))
	assert.Equal(t, color.NRGBA{R: 5, G: 6, B: 7, A: 255}, got.NRGBAAt(4, 4))
	assert.Equal(t, color.NRGBA{R: 5, G: 6, B: 7, A: 255}, got.NRGBAAt(5, 5))
}

func TestCompositeTileWithoutFragments(t *testing.T) {
	in := []byte("opaque bytes are returned untouched")
	out, err := CompositeTile(in, nil)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestCompositeTileCorruptTile(t *testing.T) {
	tpl := processedTemplate(t, 2, map[image.Point]color.NRGBA{{0, 0}: {R: 1, A: 255}})
	_, err := CompositeTile([]byte("garbage"), []*Fragment{tpl.Chunks["0,0"]})
	assert.Error(t, err)
}

func processedTemplate(t *testing.T, tileSize int, pixels map[image.Point]color.NRGBA) *Template {
	t.Helper()
	src := image.NewNRGBA(image.Rect(0, 0, tileSize, tileSize))
	for p, c := range pixels {
		src.SetNRGBA(p.X, p.Y, c)
	}
	anchor := entity.Coordinate{}
	tpl, err := NewTemplate("", &anchor, WithTileSize(tileSize), WithPixelGridSize(3))
	require.NoError(t, err)
	require.NoError(t, tpl.ProcessImage(src))
	return tpl
}
