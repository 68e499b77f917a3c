package processor

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/ds124wfegd/tile-overlay/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestProcessOpaquePixelCount checks that a fully opaque source counts every pixel
func TestProcessOpaquePixelCount(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		height int
		anchor entity.Coordinate
	}{
		{name: "single pixel at origin", width: 1, height: 1, anchor: entity.Coordinate{}},
		{name: "rectangle inside one tile", width: 4, height: 3, anchor: entity.Coordinate{TileX: 2, TileY: 7, PixelX: 1, PixelY: 2}},
		{name: "rectangle crossing tiles", width: 9, height: 5, anchor: entity.Coordinate{TileX: 0, TileY: 0, PixelX: 6, PixelY: 8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := image.NewNRGBA(image.Rect(0, 0, tt.width, tt.height))
			fillImageWithColor(src, color.NRGBA{R: 100, G: 150, B: 200, A: 255})

			anchor := tt.anchor
			tpl, err := NewTemplate("opaque", &anchor, WithTileSize(10))
			require.NoError(t, err)
			require.NoError(t, tpl.ProcessImage(src))

			assert.Equal(t, tt.width*tt.height, tpl.PixelCount)
			assert.Equal(t, tt.width*tt.height, countOpaque(tpl))
			assert.Len(t, tpl.ChunksBase64, len(tpl.Chunks))
		})
	}
}

func TestProcessGridEffect(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	colors := []color.NRGBA{
		{R: 255, A: 255}, {G: 255, A: 255}, {B: 255, A: 255},
		{R: 10, G: 20, B: 30, A: 128}, {R: 1, G: 2, B: 3, A: 1}, {R: 200, G: 200, B: 200, A: 255},
	}
	for i, c := range colors {
		src.SetNRGBA(i%3, i/3, c)
	}

	anchor := entity.Coordinate{TileX: 3, TileY: 4, PixelX: 1, PixelY: 1}
	tpl, err := NewTemplate("grid", &anchor, WithTileSize(8), WithPixelGridSize(3))
	require.NoError(t, err)
	require.NoError(t, tpl.ProcessImage(src))

	frag, ok := tpl.Chunks["3,4"]
	require.True(t, ok)
	assert.Equal(t, image.Rect(0, 0, 24, 24), frag.Bitmap.Bounds())
	assert.Zero(t, frag.X)
	assert.Zero(t, frag.Y)

	for i, want := range colors {
		lx, ly := 1+i%3, 1+i/3
		for by := 0; by < 3; by++ {
			for bx := 0; bx < 3; bx++ {
				got := frag.Bitmap.NRGBAAt(lx*3+bx, ly*3+by)
				if bx == 1 && by == 1 {
					assert.Equal(t, want, got, "centre of block %d", i)
				} else {
					assert.Equal(t, uint8(0), got.A, "border of block %d at %d,%d", i, bx, by)
				}
			}
		}
	}
}

func TestProcessSkipsTransparentPixels(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 20, 1))
	src.SetNRGBA(15, 0, color.NRGBA{R: 9, A: 255})

	anchor := entity.Coordinate{}
	tpl, err := NewTemplate("sparse", &anchor, WithTileSize(10), WithPixelGridSize(1))
	require.NoError(t, err)
	require.NoError(t, tpl.ProcessImage(src))

	assert.Equal(t, 1, tpl.PixelCount)
	assert.Equal(t, []string{"1,0"}, tpl.TileKeys())
	assert.Equal(t, color.NRGBA{R: 9, A: 255}, tpl.Chunks["1,0"].Bitmap.NRGBAAt(5, 0))
}

func TestProcessSplitsAnchorAcrossFourTiles(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	fillImageWithColor(src, color.NRGBA{R: 50, G: 100, B: 150, A: 255})

	anchor := entity.Coordinate{TileX: 5, TileY: 5, PixelX: 998, PixelY: 998}
	// N=1 keeps the 1000px fragments small; placement is identical for any N
	tpl, err := NewTemplate("corner", &anchor, WithTileSize(1000), WithPixelGridSize(1))
	require.NoError(t, err)
	require.NoError(t, tpl.ProcessImage(src))

	assert.Equal(t, 16, tpl.PixelCount)
	assert.Equal(t, []string{"5,5", "5,6", "6,5", "6,6"}, tpl.TileKeys())

	expected := map[string][]image.Point{
		"5,5": {{998, 998}, {999, 998}, {998, 999}, {999, 999}},
		"6,5": {{0, 998}, {1, 998}, {0, 999}, {1, 999}},
		"5,6": {{998, 0}, {999, 0}, {998, 1}, {999, 1}},
		"6,6": {{0, 0}, {1, 0}, {0, 1}, {1, 1}},
	}
	for key, points := range expected {
		frag := tpl.Chunks[key]
		require.NotNil(t, frag, key)
		assert.Equal(t, 4, opaqueIn(frag.Bitmap), key)
		for _, p := range points {
			assert.Equal(t, uint8(255), frag.Bitmap.NRGBAAt(p.X, p.Y).A, "%s at %v", key, p)
		}
	}
}

func TestProcessMissingInput(t *testing.T) {
	anchor := entity.Coordinate{}
	tpl, err := NewTemplate("", &anchor)
	require.NoError(t, err)
	assert.Equal(t, DefaultDisplayName, tpl.DisplayName)
	assert.ErrorIs(t, tpl.Process(nil), ErrMissingInput)
	assert.ErrorIs(t, tpl.ProcessImage(nil), ErrMissingInput)

	noCoords, err := NewTemplate("x", nil)
	require.NoError(t, err)
	assert.ErrorIs(t, noCoords.Process(bytes.NewReader(encodeTestPNG(t, image.NewNRGBA(image.Rect(0, 0, 1, 1))))), ErrMissingInput)
	assert.Empty(t, noCoords.Chunks)
}

func TestProcessCorruptImage(t *testing.T) {
	anchor := entity.Coordinate{}
	tpl, err := NewTemplate("corrupt", &anchor)
	require.NoError(t, err)
	err = tpl.Process(bytes.NewReader([]byte("definitely not an image")))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrMissingInput)
}

func TestNewTemplateValidation(t *testing.T) {
	anchor := entity.Coordinate{}
	tests := []struct {
		name string
		opts []Option
	}{
		{name: "even grid", opts: []Option{WithPixelGridSize(2)}},
		{name: "zero grid", opts: []Option{WithPixelGridSize(0)}},
		{name: "zero tile size", opts: []Option{WithTileSize(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTemplate("bad", &anchor, tt.opts...)
			assert.Error(t, err)
		})
	}
}

// TestFragmentRoundTrip проверяет, что сохранённые фрагменты восстанавливаются без потерь
func TestFragmentRoundTrip(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 5, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 5; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 40), G: uint8(y * 70), B: 33, A: uint8(60 + x*y*10)})
		}
	}
	anchor := entity.Coordinate{TileX: 1, TileY: 1, PixelX: 4, PixelY: 5}
	tpl, err := NewTemplate("round trip", &anchor, WithTileSize(6))
	require.NoError(t, err)
	require.NoError(t, tpl.ProcessImage(src))

	restored, errs := FromRecord(tpl.Record(), WithTileSize(6))
	require.Empty(t, errs)
	assert.Equal(t, tpl.DisplayName, restored.DisplayName)
	assert.Equal(t, *tpl.Coords, *restored.Coords)
	assert.Equal(t, tpl.PixelCount, restored.PixelCount)
	require.Equal(t, tpl.TileKeys(), restored.TileKeys())
	for key, frag := range tpl.Chunks {
		assert.Equal(t, frag.Bitmap.Pix, restored.Chunks[key].Bitmap.Pix, key)
	}
}

func TestFromRecordSkipsBrokenFragments(t *testing.T) {
	good := image.NewNRGBA(image.Rect(0, 0, 3, 3))
	good.SetNRGBA(1, 1, color.NRGBA{G: 255, A: 255})
	encoded, err := EncodeBase64PNG(good)
	require.NoError(t, err)

	rec := entity.TemplateRecord{
		DisplayName: "partial",
		Coords:      []int{0, 0, 0, 0},
		ChunksBase64: map[string]string{
			"0,0":    "data:image/png;base64," + encoded,
			"1,0":    "!!!",
			"broken": encoded,
		},
		PixelCount: 1,
	}
	tpl, errs := FromRecord(rec)
	require.NotNil(t, tpl)
	assert.Len(t, errs, 2)
	assert.Equal(t, []string{"0,0"}, tpl.TileKeys())
	assert.Equal(t, good.Pix, tpl.Chunks["0,0"].Bitmap.Pix)
}

func TestDecodeBase64PNG(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.SetNRGBA(0, 1, color.NRGBA{R: 1, G: 2, B: 3, A: 4})
	raw := base64.StdEncoding.EncodeToString(encodeTestPNG(t, img))

	for _, in := range []string{raw, "data:image/png;base64," + raw} {
		got, err := DecodeBase64PNG(in)
		require.NoError(t, err)
		assert.Equal(t, img.Pix, got.Pix)
	}

	_, err := DecodeBase64PNG("bm90IGEgcG5n")
	assert.Error(t, err)
}

// fillImageWithColor заполняет изображение одним цветом
func fillImageWithColor(img *image.NRGBA, c color.NRGBA) {
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
}

func opaqueIn(img *image.NRGBA) int {
	n := 0
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] > 0 {
			n++
		}
	}
	return n
}

func countOpaque(tpl *Template) int {
	n := 0
	for _, frag := range tpl.Chunks {
		n += opaqueIn(frag.Bitmap)
	}
	return n
}

func encodeTestPNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
