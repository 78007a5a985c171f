package navigator

import (
	"math"
	"time"
)

// Config holds the navigator's search and approach parameters.
type Config struct {
	// Attempts is the number of sweep steps before giving up.
	Attempts int

	// Polls is how many frames are checked per sweep step.
	Polls int

	// PollInterval is the delay between polls.
	PollInterval time.Duration

	// SweepStep is the rotation between attempts, in radians.
	SweepStep float64

	// MinReferences is how many reference beacons localisation needs.
	MinReferences int

	// ReferenceIDs are the fixed beacons used for localisation.
	ReferenceIDs []int

	// ExcludedIDs are never picked as the "next" target.
	ExcludedIDs []int

	// InitialApproach is driven straight ahead at start, in mm.
	InitialApproach float64

	// Clearance is where the rover stops short of a target, in mm.
	Clearance float64

	// InnerRadiusCm is the inside/outside threshold around the arena
	// centre.
	InnerRadiusCm float64

	// SensorTimeout bounds every wait for a camera frame.
	SensorTimeout time.Duration

	// SettleDelay is the pause after localisation.
	SettleDelay time.Duration
}

// DefaultConfig returns sensible defaults for the navigator.
// A full sweep is 18 steps of 20 degrees.
func DefaultConfig() Config {
	return Config{
		Attempts:        18,
		Polls:           10,
		PollInterval:    100 * time.Millisecond,
		SweepStep:       20 * math.Pi / 180,
		MinReferences:   3,
		ReferenceIDs:    []int{1, 2, 3, 4},
		ExcludedIDs:     []int{0, 1, 2, 3, 4},
		InitialApproach: 1300,
		Clearance:       200,
		InnerRadiusCm:   80,
		SensorTimeout:   30 * time.Second,
		SettleDelay:     time.Second,
	}
}

func contains(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
