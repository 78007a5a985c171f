package control

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestState_TryStartAutoSingleWinner(t *testing.T) {
	var s State
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.TryStartAuto() {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("winners = %d, want 1", wins.Load())
	}
	if s.Auto() != AutoPending {
		t.Errorf("mode = %s, want pending", s.Auto())
	}

	s.ActivateAuto()
	if s.Auto() != AutoActive || !s.AutoActive() {
		t.Errorf("mode = %s, want active", s.Auto())
	}
	s.EndAuto()
	if s.AutoActive() {
		t.Error("EndAuto should return to idle")
	}
	if !s.TryStartAuto() {
		t.Error("a new run should start after EndAuto")
	}
}

func TestState_Battery(t *testing.T) {
	var s State
	if !s.SetBattery(0) {
		t.Error("first reading should count as a change")
	}
	if s.SetBattery(0) {
		t.Error("same reading should not count as a change")
	}
	if !s.SetBattery(97.5) || s.Battery() != 97.5 {
		t.Errorf("battery = %v, want 97.5", s.Battery())
	}
}

func TestState_Snapshot(t *testing.T) {
	var s State
	s.AddCapture()
	s.SetRunning(true)

	snap := s.Snapshot()
	if snap.Captures != 1 || !snap.Running || snap.Auto != "idle" || snap.Stopped {
		t.Errorf("snapshot = %+v", snap)
	}
	if !s.markStopped() || s.markStopped() {
		t.Error("markStopped should succeed exactly once")
	}
}
