package control

import (
	"sync"
	"sync/atomic"
)

// AutoMode is the autonomous-mode lifecycle.
type AutoMode int32

const (
	AutoIdle AutoMode = iota
	AutoPending
	AutoActive
)

func (m AutoMode) String() string {
	switch m {
	case AutoIdle:
		return "idle"
	case AutoPending:
		return "pending"
	case AutoActive:
		return "active"
	default:
		return "unknown"
	}
}

// State is the rover state shared between connections, background loops
// and the navigator. All methods are safe for concurrent use.
type State struct {
	auto     atomic.Int32
	captures atomic.Int32
	running  atomic.Bool
	stopped  atomic.Bool

	mu         sync.Mutex
	battery    float64
	hasBattery bool
}

// Snapshot is a point-in-time copy of State.
type Snapshot struct {
	Auto     string  `json:"auto"`
	Captures int     `json:"captures"`
	Battery  float64 `json:"battery"`
	Running  bool    `json:"running"`
	Stopped  bool    `json:"stopped"`
}

// TryStartAuto moves idle to pending. Only one caller can win.
func (s *State) TryStartAuto() bool {
	return s.auto.CompareAndSwap(int32(AutoIdle), int32(AutoPending))
}

// ActivateAuto moves pending to active.
func (s *State) ActivateAuto() {
	s.auto.CompareAndSwap(int32(AutoPending), int32(AutoActive))
}

// EndAuto returns to idle from any mode.
func (s *State) EndAuto() {
	s.auto.Store(int32(AutoIdle))
}

// Auto returns the current mode.
func (s *State) Auto() AutoMode {
	return AutoMode(s.auto.Load())
}

// AutoActive reports whether manual commands are locked out.
func (s *State) AutoActive() bool {
	return s.Auto() != AutoIdle
}

// AddCapture records a capture and returns the new total.
func (s *State) AddCapture() int {
	return int(s.captures.Add(1))
}

func (s *State) Captures() int {
	return int(s.captures.Load())
}

// SetBattery stores level and reports whether it differs from the last
// stored value. The first value always counts as a change.
func (s *State) SetBattery(level float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasBattery && s.battery == level {
		return false
	}
	s.battery = level
	s.hasBattery = true
	return true
}

func (s *State) Battery() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.battery
}

// SetRunning marks the course as running. Position telemetry is only
// sent while it is set.
func (s *State) SetRunning(v bool) {
	s.running.Store(v)
}

func (s *State) Running() bool {
	return s.running.Load()
}

// markStopped reports whether this call was the first.
func (s *State) markStopped() bool {
	return s.stopped.CompareAndSwap(false, true)
}

// Stopped reports whether shutdown has begun.
func (s *State) Stopped() bool {
	return s.stopped.Load()
}

// Snapshot returns a copy of the state.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Auto:     s.Auto().String(),
		Captures: s.Captures(),
		Battery:  s.Battery(),
		Running:  s.Running(),
		Stopped:  s.Stopped(),
	}
}
