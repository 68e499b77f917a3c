package bridge

import (
	"net/url"
	"regexp"
	"strconv"
)

type Route string

const (
	RouteNone  Route = ""
	RouteMe    Route = "me"
	RoutePixel Route = "pixel"
	RouteTiles Route = "tiles"
)

var (
	mePattern    = regexp.MustCompile(`(?:^|/)me/?$`)
	pixelPattern = regexp.MustCompile(`/pixel/(?:[^/]+/)*?(\d+)/(\d+)/?$`)
	tilesPattern = regexp.MustCompile(`/tiles/(?:[^/]+/)*?(\d+)/(\d+)\.[A-Za-z0-9]+$`)
)

// Match is a routed endpoint. Tile holds the two rightmost numeric path
// segments for pixel and tiles routes.
type Match struct {
	Route Route
	Tile  [2]int
	Query url.Values
}

// Classify routes an endpoint URL by its path. Unparseable or unknown
// endpoints route to RouteNone.
func Classify(endpoint string) Match {
	u, err := url.Parse(endpoint)
	if err != nil {
		return Match{}
	}
	path := u.Path

	switch {
	case mePattern.MatchString(path):
		return Match{Route: RouteMe, Query: u.Query()}
	case pixelPattern.MatchString(path):
		return withTile(RoutePixel, pixelPattern.FindStringSubmatch(path), u)
	case tilesPattern.MatchString(path):
		return withTile(RouteTiles, tilesPattern.FindStringSubmatch(path), u)
	}
	return Match{}
}

func withTile(route Route, groups []string, u *url.URL) Match {
	x, errX := strconv.Atoi(groups[1])
	y, errY := strconv.Atoi(groups[2])
	if errX != nil || errY != nil {
		return Match{}
	}
	return Match{Route: route, Tile: [2]int{x, y}, Query: u.Query()}
}
