// Package sensor defines the beacon camera port: frame sources, marker
// detectors and the latest-frame holder shared between the camera loop
// and the navigator.
package sensor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNoFrame is returned when no frame has been captured yet.
var ErrNoFrame = errors.New("sensor: no frame captured")

// Marker is one beacon seen in a frame.
type Marker struct {
	ID int `json:"id"`

	// Distance from the camera in cm.
	Distance float64 `json:"distance"`

	// HorizontalAngle is the bearing from the image centre in degrees,
	// positive to the right.
	HorizontalAngle float64 `json:"horizontal_angle"`
}

// Source captures encoded camera frames.
type Source interface {
	Capture() ([]byte, error)
}

// Detector finds markers in an encoded frame.
type Detector interface {
	DetectMarkers(frame []byte) ([]Marker, error)
}

// Frame is a captured image with its sequence number.
type Frame struct {
	Data []byte
	Seq  uint64
	At   time.Time
}

// Latest holds the most recent frame. One writer (the camera loop),
// any number of readers.
type Latest struct {
	frame atomic.Pointer[Frame]

	mu      sync.Mutex
	seq     uint64
	changed chan struct{} // closed and replaced on every Store
}

// NewLatest creates an empty holder.
func NewLatest() *Latest {
	return &Latest{changed: make(chan struct{})}
}

// Store publishes data as the newest frame.
func (l *Latest) Store(data []byte) Frame {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	f := &Frame{Data: data, Seq: l.seq, At: time.Now()}
	l.frame.Store(f)
	close(l.changed)
	l.changed = make(chan struct{})
	return *f
}

// Load returns the newest frame, if any.
func (l *Latest) Load() (Frame, bool) {
	f := l.frame.Load()
	if f == nil {
		return Frame{}, false
	}
	return *f, true
}

// Wait blocks until a frame exists or ctx is done.
func (l *Latest) Wait(ctx context.Context) (Frame, error) {
	return l.Next(ctx, 0)
}

// Next blocks until a frame with a sequence number above after exists.
func (l *Latest) Next(ctx context.Context, after uint64) (Frame, error) {
	for {
		l.mu.Lock()
		f := l.frame.Load()
		changed := l.changed
		l.mu.Unlock()

		if f != nil && f.Seq > after {
			return *f, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		}
	}
}

// Detect runs d on the newest frame.
func (l *Latest) Detect(d Detector) ([]Marker, error) {
	f, ok := l.Load()
	if !ok {
		return nil, ErrNoFrame
	}
	return d.DetectMarkers(f.Data)
}
