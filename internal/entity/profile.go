package entity

import (
	"fmt"
	"math"
	"strings"
)

// UserProfile is the subset of the canvas service's /me payload we care about.
type UserProfile struct {
	Status        any     `json:"status,omitempty"`
	ID            any     `json:"id"`
	Name          string  `json:"name"`
	Droplets      float64 `json:"droplets"`
	Level         float64 `json:"level"`
	PixelsPainted float64 `json:"pixelsPainted"`
}

// Authenticated reports whether the embedded status, if any, is a 2xx code.
func (p UserProfile) Authenticated() bool {
	if p.Status == nil {
		return true
	}
	return strings.HasPrefix(fmt.Sprint(p.Status), "2")
}

func (p UserProfile) UserID() string {
	if p.ID == nil {
		return ""
	}
	if f, ok := p.ID.(float64); ok {
		return fmt.Sprintf("%.0f", f)
	}
	return fmt.Sprint(p.ID)
}

// PixelsToNextLevel follows the canvas service's level curve.
func (p UserProfile) PixelsToNextLevel() int {
	need := math.Pow(math.Floor(p.Level)*math.Pow(30, 0.65), 1/0.65)
	return int(math.Ceil(need - p.PixelsPainted))
}
