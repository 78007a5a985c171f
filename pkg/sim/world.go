// Package sim is a deterministic simulated arena. A World is a drive,
// a camera and a beacon detector at once, so the supervisor can run end
// to end without hardware.
package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/golang/geo/r2"

	"github.com/teslashibe/go-rover/pkg/drive"
	"github.com/teslashibe/go-rover/pkg/position"
	"github.com/teslashibe/go-rover/pkg/sensor"
)

// Config describes the simulated arena.
type Config struct {
	// Beacons maps every marker id (reference and target) to its
	// position in mm.
	Beacons map[int]r2.Point

	// FOVDeg is the camera's horizontal field of view.
	FOVDeg float64

	// RangeMm is how far away a marker can still be read.
	RangeMm float64

	// MotionDelay is how long each rotate or move takes.
	MotionDelay time.Duration

	// BatteryDrain is subtracted from the battery level per motion.
	BatteryDrain float64
}

// DefaultConfig returns an arena with the four reference beacons on the
// walls and no targets.
func DefaultConfig() Config {
	return Config{
		Beacons: map[int]r2.Point{
			1: {X: 0, Y: 1500},
			2: {X: 1500, Y: 0},
			3: {X: 0, Y: -1500},
			4: {X: -1500, Y: 0},
		},
		FOVDeg:       62,
		RangeMm:      4000,
		MotionDelay:  50 * time.Millisecond,
		BatteryDrain: 0.1,
	}
}

// World holds the true rover pose.
type World struct {
	cfg Config

	mu      sync.Mutex
	pose    position.Pose
	left    float64
	right   float64
	stops   int
	battery float64
}

var (
	_ drive.Driver        = (*World)(nil)
	_ drive.BatteryReader = (*World)(nil)
	_ sensor.Source       = (*World)(nil)
	_ sensor.Detector     = (*World)(nil)
)

// New creates a world with the rover at the origin facing +X.
func New(cfg Config) *World {
	def := DefaultConfig()
	if cfg.Beacons == nil {
		cfg.Beacons = def.Beacons
	}
	if cfg.FOVDeg <= 0 {
		cfg.FOVDeg = def.FOVDeg
	}
	if cfg.RangeMm <= 0 {
		cfg.RangeMm = def.RangeMm
	}
	return &World{cfg: cfg, battery: 100}
}

// SetPose places the rover.
func (w *World) SetPose(p position.Pose) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pose = p
}

// Pose returns the true rover pose.
func (w *World) Pose() position.Pose {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pose
}

// Wheels returns the last manual wheel speeds.
func (w *World) Wheels() (left, right float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.left, w.right
}

// Stops returns how many times Stop was called.
func (w *World) Stops() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stops
}

// Rotate implements drive.Rotator.
func (w *World) Rotate(ctx context.Context, rad float64) error {
	if err := w.wait(ctx); err != nil {
		return err
	}
	w.mu.Lock()
	w.pose.Heading = position.NormalizeAngle(w.pose.Heading + rad)
	w.drain()
	w.mu.Unlock()
	return nil
}

// Move implements drive.Mover.
func (w *World) Move(ctx context.Context, mm float64) error {
	if err := w.wait(ctx); err != nil {
		return err
	}
	w.mu.Lock()
	w.pose.X += mm * math.Cos(w.pose.Heading)
	w.pose.Y += mm * math.Sin(w.pose.Heading)
	w.drain()
	w.mu.Unlock()
	return nil
}

// SetWheelSpeeds implements drive.WheelDriver. Manual speeds are
// recorded but do not move the simulated rover.
func (w *World) SetWheelSpeeds(left, right float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.left, w.right = left, right
	return nil
}

// Stop implements drive.Stopper.
func (w *World) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.left, w.right = 0, 0
	w.stops++
	return nil
}

// Battery implements drive.BatteryReader.
func (w *World) Battery() (float64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.battery, nil
}

func (w *World) drain() {
	w.battery = math.Max(0, w.battery-w.cfg.BatteryDrain)
}

func (w *World) wait(ctx context.Context) error {
	if w.cfg.MotionDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(w.cfg.MotionDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// frame is what a simulated camera image carries: the pose it was
// taken from.
type frame struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"heading"`
}

// Capture implements sensor.Source. Frames only change when the rover
// moves.
func (w *World) Capture() ([]byte, error) {
	p := w.Pose()
	return json.Marshal(frame{X: p.X, Y: p.Y, Heading: p.Heading})
}

// DetectMarkers implements sensor.Detector. It returns every beacon
// inside the field of view and range of the frame's pose, ordered by id.
func (w *World) DetectMarkers(data []byte) ([]sensor.Marker, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("sim: bad frame: %w", err)
	}
	from := r2.Point{X: f.X, Y: f.Y}

	ids := make([]int, 0, len(w.cfg.Beacons))
	for id := range w.cfg.Beacons {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var markers []sensor.Marker
	for _, id := range ids {
		v := w.cfg.Beacons[id].Sub(from)
		dist := v.Norm()
		if dist > w.cfg.RangeMm || dist == 0 {
			continue
		}
		rel := position.NormalizeAngle(math.Atan2(v.Y, v.X) - f.Heading)
		// Counter-clockwise is left in the image.
		angle := -rel * 180 / math.Pi
		if math.Abs(angle) > w.cfg.FOVDeg/2 {
			continue
		}
		markers = append(markers, sensor.Marker{
			ID:              id,
			Distance:        dist / 10,
			HorizontalAngle: angle,
		})
	}
	return markers, nil
}
