// Package drive provides interfaces and adapters for the rover's
// differential drive.
//
// This package follows the Interface Segregation Principle (ISP) by defining
// small, focused interfaces that can be composed as needed. Consumers should
// depend only on the interfaces they actually use.
package drive

import (
	"context"
	"errors"
)

// ErrNoBattery is returned by adapters that cannot read a battery level.
var ErrNoBattery = errors.New("drive: battery level not available")

// Rotator turns the rover in place. Positive angles are counter-clockwise.
// Rotate blocks until the motion completes or ctx is done.
type Rotator interface {
	Rotate(ctx context.Context, rad float64) error
}

// Mover drives straight ahead. Move blocks until the motion completes or
// ctx is done.
type Mover interface {
	Move(ctx context.Context, mm float64) error
}

// WheelDriver sets raw differential wheel speeds for manual control.
type WheelDriver interface {
	SetWheelSpeeds(left, right float64) error
}

// Stopper halts both wheels immediately.
type Stopper interface {
	Stop() error
}

// BatteryReader reports the battery level in percent.
type BatteryReader interface {
	Battery() (float64, error)
}

// Driver is the composite interface for full drive control.
// Use this when you need complete control capabilities.
type Driver interface {
	Rotator
	Mover
	WheelDriver
	Stopper
}

// Ensure adapters implement Driver
var (
	_ Driver = (*HTTPDriver)(nil)
	_ Driver = (*SerialDriver)(nil)
	_ Driver = (*Serialized)(nil)
)
