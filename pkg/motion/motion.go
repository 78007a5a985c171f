// Package motion translates joystick samples into differential wheel
// speeds.
package motion

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidMode is returned for a speed mode outside 1..3.
var ErrInvalidMode = errors.New("motion: invalid speed mode")

// Speed modes.
const (
	ModeSlow   = 1
	ModeNormal = 2
	ModeSport  = 3
)

// Factor returns the speed scalar for mode.
func Factor(mode int) (float64, error) {
	switch mode {
	case ModeSlow:
		return 100, nil
	case ModeNormal:
		return 300, nil
	case ModeSport:
		return 400, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidMode, mode)
	}
}

// Input is one joystick sample. Angle is in degrees.
type Input struct {
	Angle    float64
	Distance float64
	X        float64
	Y        float64
	Mode     int
}

// Output is the wheel pair to apply.
type Output struct {
	Left  float64
	Right float64

	// Speed is the mode-scaled stick distance reported back to the client.
	Speed float64

	// Stop is set for a neutral stick; both wheels are zero.
	Stop bool
}

// WrapAngle maps degrees into (-180, 180].
func WrapAngle(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg > 180 {
		deg -= 360
	} else if deg <= -180 {
		deg += 360
	}
	return deg
}

// Translate maps in to a tank-drive wheel pair.
//
// Both wheels run backwards when the wrapped angle is outside (-90, 90).
// For angles in (0, 180) the left wheel takes the scaled x axis and the
// right wheel the y axis; otherwise they swap.
func Translate(in Input) (Output, error) {
	f, err := Factor(in.Mode)
	if err != nil {
		return Output{}, err
	}

	angle := WrapAngle(in.Angle)
	out := Output{Speed: f * in.Distance}

	if angle == 0 && in.Distance == 0 {
		out.Stop = true
		return out, nil
	}

	mx := math.Abs(in.X * f)
	my := math.Abs(in.Y * f)
	if !(angle > -90 && angle < 90) {
		mx, my = -mx, -my
	}

	if angle > 0 && angle < 180 {
		out.Left, out.Right = mx, my
	} else {
		out.Left, out.Right = my, mx
	}
	return out, nil
}
