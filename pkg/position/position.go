// Package position owns the rover pose and fixes it from beacon ranges.
//
// Coordinates are arena millimetres with the origin at the centre.
// Headings are radians, counter-clockwise from +X.
package position

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/golang/geo/r2"
)

var (
	ErrInsufficientBeacons = errors.New("position: need at least 3 beacons")
	ErrUnknownBeacon       = errors.New("position: unknown beacon")
	ErrNoFacing            = errors.New("position: no facing beacon")
	ErrDegenerate          = errors.New("position: beacons are collinear")
)

// Pose is a position and heading.
type Pose struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"heading"`
}

// Point returns the position part of p.
func (p Pose) Point() r2.Point {
	return r2.Point{X: p.X, Y: p.Y}
}

// TargetDistance is a range to a known beacon. Exactly one entry passed
// to Triangulate is Facing: the beacon the rover is centred on.
type TargetDistance struct {
	ID       int
	Distance float64 // mm
	Facing   bool
}

// Store holds the pose. Readers always get a consistent copy.
type Store struct {
	mu      sync.RWMutex
	pose    Pose
	beacons map[int]r2.Point
}

// NewStore creates a store with the given fixed beacon layout.
func NewStore(beacons map[int]r2.Point) *Store {
	b := make(map[int]r2.Point, len(beacons))
	for id, p := range beacons {
		b[id] = p
	}
	return &Store{beacons: b}
}

// Pose returns the current pose.
func (s *Store) Pose() Pose {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pose
}

// Set overwrites the pose.
func (s *Store) Set(p Pose) {
	p.Heading = NormalizeAngle(p.Heading)
	s.mu.Lock()
	s.pose = p
	s.mu.Unlock()
}

// Turn adds rad to the heading.
func (s *Store) Turn(rad float64) {
	s.mu.Lock()
	s.pose.Heading = NormalizeAngle(s.pose.Heading + rad)
	s.mu.Unlock()
}

// Advance moves the pose mm along the current heading.
func (s *Store) Advance(mm float64) {
	s.mu.Lock()
	s.pose.X += mm * math.Cos(s.pose.Heading)
	s.pose.Y += mm * math.Sin(s.pose.Heading)
	s.mu.Unlock()
}

// Beacon returns the position of a reference beacon.
func (s *Store) Beacon(id int) (r2.Point, bool) {
	p, ok := s.beacons[id]
	return p, ok
}

// Triangulate fixes the position from three or more beacon ranges by
// linear least squares, and the heading from the facing beacon. The new
// pose is stored and returned.
func (s *Store) Triangulate(targets []TargetDistance) (Pose, error) {
	if len(targets) < 3 {
		return Pose{}, fmt.Errorf("%w: have %d", ErrInsufficientBeacons, len(targets))
	}

	points := make([]r2.Point, len(targets))
	facing := -1
	for i, t := range targets {
		p, ok := s.beacons[t.ID]
		if !ok {
			return Pose{}, fmt.Errorf("%w: %d", ErrUnknownBeacon, t.ID)
		}
		points[i] = p
		if t.Facing {
			facing = i
		}
	}
	if facing < 0 {
		return Pose{}, ErrNoFacing
	}

	pos, err := trilaterate(points, targets)
	if err != nil {
		return Pose{}, err
	}

	toBeacon := points[facing].Sub(pos)
	pose := Pose{
		X:       pos.X,
		Y:       pos.Y,
		Heading: math.Atan2(toBeacon.Y, toBeacon.X),
	}

	s.mu.Lock()
	s.pose = pose
	s.mu.Unlock()
	return pose, nil
}

// trilaterate subtracts the first range equation from the others and
// solves the 2x2 normal equations.
func trilaterate(points []r2.Point, targets []TargetDistance) (r2.Point, error) {
	p0, d0 := points[0], targets[0].Distance

	// Normal matrix [a b; b c] and right-hand side (u, v).
	var a, b, c, u, v float64
	for i := 1; i < len(points); i++ {
		row := points[i].Sub(p0).Mul(2)
		rhs := d0*d0 - targets[i].Distance*targets[i].Distance +
			points[i].Dot(points[i]) - p0.Dot(p0)

		a += row.X * row.X
		b += row.X * row.Y
		c += row.Y * row.Y
		u += row.X * rhs
		v += row.Y * rhs
	}

	det := a*c - b*b
	if math.Abs(det) < 1e-9*math.Max(1, a*c) {
		return r2.Point{}, ErrDegenerate
	}
	return r2.Point{
		X: (c*u - b*v) / det,
		Y: (a*v - b*u) / det,
	}, nil
}

// NormalizeAngle maps rad into [-π, π).
func NormalizeAngle(rad float64) float64 {
	rad = math.Mod(rad+math.Pi, 2*math.Pi)
	if rad < 0 {
		rad += 2 * math.Pi
	}
	return rad - math.Pi
}
