package processor

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// DecodeImage decodes any registered raster format (png, jpeg, gif, bmp, tiff, webp).
func DecodeImage(r io.Reader) (image.Image, error) {
	return imaging.Decode(r)
}

func DecodeNRGBA(r io.Reader) (*image.NRGBA, error) {
	img, err := DecodeImage(r)
	if err != nil {
		return nil, err
	}
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Rect.Min == (image.Point{}) {
		return nrgba, nil
	}
	return imaging.Clone(img), nil
}

func EncodePNG(img image.Image, opts ...imaging.EncodeOption) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG, opts...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// fastPNG trades size for latency on tiles that are re-encoded per request.
var fastPNG = imaging.PNGCompressionLevel(png.BestSpeed)

func EncodeBase64PNG(img image.Image) (string, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeBase64PNG accepts raw base64 or a data URL such as "data:image/png;base64,....".
func DecodeBase64PNG(s string) (*image.NRGBA, error) {
	if i := strings.LastIndexByte(s, ','); i >= 0 {
		s = s[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return DecodeNRGBA(bytes.NewReader(data))
}
