// Package watchdog holds the rover's advisory safety timers.
package watchdog

import (
	"sync"
	"time"
)

// DefaultSilenceDelay is how long the rover keeps driving without a new
// manual command.
const DefaultSilenceDelay = 5 * time.Second

// SilenceTimer calls onFire once the delay has elapsed since the last Arm.
// At most one timer is ever pending.
type SilenceTimer struct {
	delay  time.Duration
	onFire func()

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// NewSilenceTimer creates a disarmed timer. A non-positive delay selects
// DefaultSilenceDelay.
func NewSilenceTimer(delay time.Duration, onFire func()) *SilenceTimer {
	if delay <= 0 {
		delay = DefaultSilenceDelay
	}
	return &SilenceTimer{delay: delay, onFire: onFire}
}

// Arm cancels any pending timer and starts a new one.
func (s *SilenceTimer) Arm() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(s.delay, func() { s.fire(gen) })
}

// Cancel disarms the timer.
func (s *SilenceTimer) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

// Pending reports whether a timer is armed and has not fired.
func (s *SilenceTimer) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// fire runs onFire unless the timer was re-armed or cancelled after the
// callback was already scheduled.
func (s *SilenceTimer) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	s.onFire()
}
