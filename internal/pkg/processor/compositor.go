package processor

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// CompositeTile decodes a tile, magnifies it to the fragments' canvas size and
// draws every fragment over it in order, so later fragments win.
func CompositeTile(tile []byte, fragments []*Fragment) ([]byte, error) {
	if len(fragments) == 0 {
		return tile, nil
	}
	src, err := DecodeImage(bytes.NewReader(tile))
	if err != nil {
		return nil, fmt.Errorf("decode tile: %w", err)
	}

	size := fragments[0].Bitmap.Bounds().Size()
	scaled := imaging.Resize(src, size.X, size.Y, imaging.NearestNeighbor)

	canvas := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	draw.Draw(canvas, canvas.Bounds(), scaled, image.Point{}, draw.Src)
	for _, f := range fragments {
		r := f.Bitmap.Bounds().Sub(f.Bitmap.Bounds().Min).Add(image.Pt(f.X, f.Y))
		draw.Draw(canvas, r, f.Bitmap, f.Bitmap.Bounds().Min, draw.Over)
	}

	out, err := EncodePNG(canvas, fastPNG)
	if err != nil {
		return nil, fmt.Errorf("encode tile: %w", err)
	}
	return out, nil
}
