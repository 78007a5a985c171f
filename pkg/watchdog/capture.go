package watchdog

import (
	"context"
	"time"
)

// Capture watcher defaults.
const (
	DefaultCaptureTarget = 2
	DefaultCapturePoll   = 100 * time.Millisecond
)

// CaptureWatcher waits for a capture counter to reach a target.
type CaptureWatcher struct {
	Count  func() int
	Target int
	Poll   time.Duration
	OnDone func()
}

// Watch polls Count until it reaches Target, then calls OnDone and
// returns true. It returns false if ctx is cancelled first.
func (w CaptureWatcher) Watch(ctx context.Context) bool {
	target := w.Target
	if target <= 0 {
		target = DefaultCaptureTarget
	}
	poll := w.Poll
	if poll <= 0 {
		poll = DefaultCapturePoll
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for w.Count() < target {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
	if w.OnDone != nil {
		w.OnDone()
	}
	return true
}
