package watchdog

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSilenceTimer_Fires(t *testing.T) {
	fired := make(chan struct{}, 1)
	st := NewSilenceTimer(20*time.Millisecond, func() { fired <- struct{}{} })

	st.Arm()
	if !st.Pending() {
		t.Error("timer should be pending after Arm")
	}
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	if st.Pending() {
		t.Error("timer should not be pending after firing")
	}
}

func TestSilenceTimer_RapidArmFiresOnce(t *testing.T) {
	var fires atomic.Int32
	st := NewSilenceTimer(30*time.Millisecond, func() { fires.Add(1) })

	for i := 0; i < 50; i++ {
		st.Arm()
		time.Sleep(time.Millisecond)
	}
	time.Sleep(150 * time.Millisecond)

	if n := fires.Load(); n != 1 {
		t.Errorf("fired %d times, want 1", n)
	}
}

func TestSilenceTimer_Cancel(t *testing.T) {
	var fires atomic.Int32
	st := NewSilenceTimer(20*time.Millisecond, func() { fires.Add(1) })

	st.Arm()
	st.Cancel()
	if st.Pending() {
		t.Error("timer should not be pending after Cancel")
	}
	time.Sleep(60 * time.Millisecond)
	if fires.Load() != 0 {
		t.Error("cancelled timer fired")
	}
}

func TestSilenceTimer_StaleGenerationIgnored(t *testing.T) {
	var fires atomic.Int32
	st := NewSilenceTimer(time.Hour, func() { fires.Add(1) })

	st.Arm()
	st.mu.Lock()
	stale := st.gen
	st.mu.Unlock()
	st.Arm()

	// A callback from the superseded timer that was already running.
	st.fire(stale)
	if fires.Load() != 0 {
		t.Error("superseded timer callback should be a no-op")
	}
	st.Cancel()
}

func TestNewSilenceTimer_DefaultDelay(t *testing.T) {
	st := NewSilenceTimer(0, func() {})
	if st.delay != DefaultSilenceDelay {
		t.Errorf("delay = %v, want %v", st.delay, DefaultSilenceDelay)
	}
}

func TestCaptureWatcher_ReachesTarget(t *testing.T) {
	var count atomic.Int32
	done := make(chan struct{})
	w := CaptureWatcher{
		Count:  func() int { return int(count.Load()) },
		Target: 2,
		Poll:   5 * time.Millisecond,
		OnDone: func() { close(done) },
	}

	result := make(chan bool, 1)
	go func() { result <- w.Watch(context.Background()) }()

	count.Add(1)
	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("finished after one capture")
	default:
	}
	count.Add(1)

	select {
	case ok := <-result:
		if !ok {
			t.Error("Watch returned false")
		}
	case <-time.After(time.Second):
		t.Fatal("watcher did not finish")
	}
	<-done
}

func TestCaptureWatcher_Cancelled(t *testing.T) {
	called := false
	w := CaptureWatcher{
		Count:  func() int { return 0 },
		Poll:   5 * time.Millisecond,
		OnDone: func() { called = true },
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if w.Watch(ctx) {
		t.Error("Watch should return false on cancel")
	}
	if called {
		t.Error("OnDone should not run on cancel")
	}
}
