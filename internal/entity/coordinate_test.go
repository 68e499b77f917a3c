package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerToDisplay(t *testing.T) {
	tests := []struct {
		name         string
		tile         TileCoords
		px, py       int
		wantX, wantY int
	}{
		{name: "origin", tile: TileCoords{0, 0}, px: 0, py: 0, wantX: 0, wantY: 0},
		{name: "inside super-grid", tile: TileCoords{2, 3}, px: 10, py: 20, wantX: 2010, wantY: 3020},
		{name: "wraps every four tiles", tile: TileCoords{5, 9}, px: 999, py: 1, wantX: 1999, wantY: 1001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := ServerToDisplay(tt.tile, tt.px, tt.py)
			assert.Equal(t, tt.wantX, x)
			assert.Equal(t, tt.wantY, y)
		})
	}
}

func TestCoordinateFromSlice(t *testing.T) {
	c, err := CoordinateFromSlice([]int{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, Coordinate{TileX: 1, TileY: 2, PixelX: 3, PixelY: 4}, c)
	assert.Equal(t, "1,2", c.Tile().Key())

	_, err = CoordinateFromSlice([]int{1, 2, 3})
	assert.Error(t, err)

	_, err = CoordinateFromSlice([]int{1, -2, 3, 4})
	assert.Error(t, err)
}

func TestParseTileKey(t *testing.T) {
	tc, err := ParseTileKey("12,34")
	require.NoError(t, err)
	assert.Equal(t, TileCoords{X: 12, Y: 34}, tc)

	for _, bad := range []string{"", "12", "a,1", "1,b"} {
		_, err := ParseTileKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestUserProfile(t *testing.T) {
	assert.True(t, UserProfile{}.Authenticated())
	assert.True(t, UserProfile{Status: float64(200)}.Authenticated())
	assert.False(t, UserProfile{Status: float64(401)}.Authenticated())
	assert.False(t, UserProfile{Status: "500"}.Authenticated())

	assert.Equal(t, "42", UserProfile{ID: float64(42)}.UserID())
	assert.Equal(t, "", UserProfile{}.UserID())

	assert.Equal(t, 0, UserProfile{}.PixelsToNextLevel())
	assert.Equal(t, 88, UserProfile{Level: 2}.PixelsToNextLevel())
	assert.Equal(t, 78, UserProfile{Level: 2.7, PixelsPainted: 10}.PixelsToNextLevel())
}
