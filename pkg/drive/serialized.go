package drive

import (
	"context"
	"sync"
)

// Serialized wraps a Driver so rotate, move, wheel and stop calls never
// interleave. A watchdog stop waits for an in-flight command to return.
type Serialized struct {
	mu sync.Mutex
	d  Driver
}

// NewSerialized wraps d.
func NewSerialized(d Driver) *Serialized {
	return &Serialized{d: d}
}

// Rotate implements Rotator.
func (s *Serialized) Rotate(ctx context.Context, rad float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.Rotate(ctx, rad)
}

// Move implements Mover.
func (s *Serialized) Move(ctx context.Context, mm float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.Move(ctx, mm)
}

// SetWheelSpeeds implements WheelDriver.
func (s *Serialized) SetWheelSpeeds(left, right float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.SetWheelSpeeds(left, right)
}

// Stop implements Stopper.
func (s *Serialized) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.Stop()
}

// Battery reads the battery if the wrapped driver can. It does not take
// the motion lock.
func (s *Serialized) Battery() (float64, error) {
	if b, ok := s.d.(BatteryReader); ok {
		return b.Battery()
	}
	return 0, ErrNoBattery
}
