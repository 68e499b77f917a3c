package entity

import (
	"fmt"
	"strconv"
	"strings"
)

// Coordinate is the anchor of a pixel on the canvas: the tile that holds it
// and the pixel offset inside that tile.
type Coordinate struct {
	TileX  int `json:"tileX"`
	TileY  int `json:"tileY"`
	PixelX int `json:"pixelX"`
	PixelY int `json:"pixelY"`
}

func CoordinateFromSlice(values []int) (Coordinate, error) {
	if len(values) != 4 {
		return Coordinate{}, fmt.Errorf("coordinate needs 4 values, got %d", len(values))
	}
	c := Coordinate{TileX: values[0], TileY: values[1], PixelX: values[2], PixelY: values[3]}
	if !c.Valid() {
		return Coordinate{}, fmt.Errorf("coordinate %v has negative values", values)
	}
	return c, nil
}

func (c Coordinate) Valid() bool {
	return c.TileX >= 0 && c.TileY >= 0 && c.PixelX >= 0 && c.PixelY >= 0
}

func (c Coordinate) Slice() []int {
	return []int{c.TileX, c.TileY, c.PixelX, c.PixelY}
}

func (c Coordinate) Tile() TileCoords {
	return TileCoords{X: c.TileX, Y: c.TileY}
}

// TileCoords addresses one tile of the remote canvas.
type TileCoords struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (t TileCoords) Key() string {
	return TileKey(t.X, t.Y)
}

func TileKey(x, y int) string {
	return strconv.Itoa(x) + "," + strconv.Itoa(y)
}

func ParseTileKey(key string) (TileCoords, error) {
	xs, ys, ok := strings.Cut(key, ",")
	if !ok {
		return TileCoords{}, fmt.Errorf("malformed tile key %q", key)
	}
	x, err := strconv.Atoi(xs)
	if err != nil {
		return TileCoords{}, fmt.Errorf("malformed tile key %q: %w", key, err)
	}
	y, err := strconv.Atoi(ys)
	if err != nil {
		return TileCoords{}, fmt.Errorf("malformed tile key %q: %w", key, err)
	}
	return TileCoords{X: x, Y: y}, nil
}

// DisplayTileSpan is the width of the tile super-grid used by display coordinates.
const DisplayTileSpan = 4

// ServerToDisplay flattens server tile/pixel coordinates into the display
// system, which repeats every 4x4 tiles of 1000 pixels.
func ServerToDisplay(tile TileCoords, pixelX, pixelY int) (int, int) {
	return (tile.X%DisplayTileSpan)*1000 + pixelX, (tile.Y%DisplayTileSpan)*1000 + pixelY
}
