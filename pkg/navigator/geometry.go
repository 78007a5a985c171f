package navigator

import (
	"math"

	"github.com/golang/geo/r2"
)

// Sector returns the compass sector letter of p. Sectors are 45 degrees
// wide, counted clockwise from north, and shifted by one so that due
// north is 'B'.
func Sector(p r2.Point) string {
	theta := math.Atan2(p.Y, p.X)
	clock := math.Mod(math.Pi/2-theta, 2*math.Pi)
	if clock < 0 {
		clock += 2 * math.Pi
	}
	idx := (int(math.Floor(clock/(math.Pi/4))) + 1) % 8
	return string(rune('A' + idx))
}

// Inside reports whether p lies within radius of the arena centre.
func Inside(p r2.Point, radius float64) bool {
	return p.Norm() <= radius
}

func degToRad(deg float64) float64 {
	return deg * math.Pi / 180
}
