// Package navigator runs the autonomous course: localise from the fixed
// beacons, find and validate two targets with the judging service, then
// return to the arena origin.
package navigator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-rover/internal/log"
	"github.com/teslashibe/go-rover/pkg/drive"
	"github.com/teslashibe/go-rover/pkg/judge"
	"github.com/teslashibe/go-rover/pkg/position"
	"github.com/teslashibe/go-rover/pkg/protocol"
	"github.com/teslashibe/go-rover/pkg/sensor"
)

var (
	// ErrSensorUnavailable is returned when no camera frame arrives in time.
	ErrSensorUnavailable = errors.New("navigator: sensor unavailable")

	// ErrAlreadyRunning is returned by Run while another run is active.
	ErrAlreadyRunning = errors.New("navigator: already running")
)

// Drive is the motion the navigator needs.
type Drive interface {
	drive.Rotator
	drive.Mover
}

// Judge is the judging service surface the navigator uses.
type Judge interface {
	SubmitMarker(ctx context.Context, s judge.Submission) (int, error)
	Status(ctx context.Context) ([]int, error)
	Worklist(ctx context.Context) ([]int, error)
}

// Broadcaster fans events out to every operator.
type Broadcaster interface {
	BroadcastJSON(v any) error
}

// Deps are the navigator's collaborators.
type Deps struct {
	Drive    Drive
	Frames   *sensor.Latest
	Detector sensor.Detector
	Pose     *position.Store
	Judge    Judge
	Bus      Broadcaster

	// OnCapture records an accepted capture and returns the new total.
	OnCapture func() int

	Logger *slog.Logger
}

// Navigator drives one autonomous run at a time.
type Navigator struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	state   atomic.Int32
	running atomic.Bool
}

// New creates a navigator. Zero config fields keep their defaults.
func New(cfg Config, deps Deps) *Navigator {
	cfg = withDefaults(cfg)
	logger := deps.Logger
	if logger == nil {
		logger = log.Component("navigator")
	}
	if deps.OnCapture == nil {
		var n atomic.Int32
		deps.OnCapture = func() int { return int(n.Add(1)) }
	}
	return &Navigator{cfg: cfg, deps: deps, log: logger}
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Attempts <= 0 {
		cfg.Attempts = def.Attempts
	}
	if cfg.Polls <= 0 {
		cfg.Polls = def.Polls
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.SweepStep == 0 {
		cfg.SweepStep = def.SweepStep
	}
	if cfg.MinReferences <= 0 {
		cfg.MinReferences = def.MinReferences
	}
	if cfg.ReferenceIDs == nil {
		cfg.ReferenceIDs = def.ReferenceIDs
	}
	if cfg.ExcludedIDs == nil {
		cfg.ExcludedIDs = def.ExcludedIDs
	}
	if cfg.InitialApproach == 0 {
		cfg.InitialApproach = def.InitialApproach
	}
	if cfg.InnerRadiusCm <= 0 {
		cfg.InnerRadiusCm = def.InnerRadiusCm
	}
	if cfg.SensorTimeout <= 0 {
		cfg.SensorTimeout = def.SensorTimeout
	}
	return cfg
}

// Config returns the effective configuration.
func (n *Navigator) Config() Config {
	return n.cfg
}

// State returns the current phase.
func (n *Navigator) State() State {
	return State(n.state.Load())
}

func (n *Navigator) setState(s State) {
	n.state.Store(int32(s))
	n.log.Debug("state", "state", s.String())
	n.emit(protocol.NewNavState(s.String()))
}

func (n *Navigator) emit(v any) {
	if n.deps.Bus == nil {
		return
	}
	if err := n.deps.Bus.BroadcastJSON(v); err != nil {
		n.log.Warn("broadcast failed", "error", err)
	}
}

// Run executes the full course. It returns nil when the course ends
// normally, including when the first target is never found.
func (n *Navigator) Run(ctx context.Context) (err error) {
	if !n.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer n.running.Store(false)

	start := time.Now()
	n.log.Info("course started", "pose", n.deps.Pose.Pose())
	defer func() {
		if err != nil {
			n.setState(StateFailed)
			n.log.Error("course failed", "error", err, "elapsed", time.Since(start))
			return
		}
		n.setState(StateDone)
		n.log.Info("course complete", "elapsed", time.Since(start), "pose", n.deps.Pose.Pose())
	}()

	n.setState(StateAwaitSensor)
	if err := n.awaitSensor(ctx); err != nil {
		return err
	}

	n.setState(StateInitialApproach)
	if err := n.move(ctx, n.cfg.InitialApproach); err != nil {
		return err
	}

	n.setState(StateLocalize)
	if err := n.Localize(ctx); err != nil {
		return err
	}

	n.setState(StateLocate)
	first, err := n.LocateNext(ctx)
	if err != nil {
		return err
	}

	n.setState(StateValidate)
	if err := n.Validate(ctx, first); err != nil {
		return err
	}
	if first == nil {
		n.log.Warn("first target not found, ending course")
		return nil
	}

	n.setState(StateSequence)
	if err := n.sequence(ctx, first.ID); err != nil {
		return err
	}

	n.setState(StateReturnToOrigin)
	return n.ReturnToOrigin(ctx)
}

// awaitSensor blocks until the camera has produced a frame.
func (n *Navigator) awaitSensor(ctx context.Context) error {
	wctx, cancel := context.WithTimeout(ctx, n.cfg.SensorTimeout)
	defer cancel()

	if _, err := n.deps.Frames.Wait(wctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n.emit(protocol.NewNotice(protocol.TypeSensorUnavailable, "no camera frame"))
		return fmt.Errorf("%w: no frame after %s", ErrSensorUnavailable, n.cfg.SensorTimeout)
	}
	return nil
}

// sequence checks the first capture with the judge and pursues the next
// worklist entry. Judge failures are reported and skip ahead.
func (n *Navigator) sequence(ctx context.Context, firstID int) error {
	accepted, err := n.deps.Judge.Status(ctx)
	switch {
	case err != nil:
		n.judgeFailed("status", err)
	case !contains(accepted, firstID):
		n.log.Warn("first target not accepted by judge", "id", firstID)
	default:
		n.log.Info("first target accepted by judge", "id", firstID)
	}

	todo, err := n.deps.Judge.Worklist(ctx)
	if err != nil {
		n.judgeFailed("list", err)
		return ctx.Err()
	}
	if len(todo) == 0 {
		n.judgeFailed("list", judge.ErrEmptyWorklist)
		return nil
	}

	n.setState(StateLocate)
	next, err := n.Locate(ctx, todo[0])
	if err != nil {
		return err
	}
	n.setState(StateValidate)
	return n.Validate(ctx, next)
}

func (n *Navigator) judgeFailed(op string, err error) {
	n.log.Error("judge call failed", "op", op, "error", err)
	n.emit(protocol.NewJudgeError(op, err))
}

// ReturnToOrigin turns toward (0, 0), drives there and resets the pose
// to the origin with the heading it arrived on.
func (n *Navigator) ReturnToOrigin(ctx context.Context) error {
	p := n.deps.Pose.Pose()
	dx, dy := -p.X, -p.Y
	dist := math.Hypot(dx, dy)
	angleTo := math.Atan2(dy, dx)
	rel := position.NormalizeAngle(angleTo - p.Heading)

	n.log.Info("returning to origin", "distance_mm", dist, "turn_rad", rel)
	if err := n.rotate(ctx, rel); err != nil {
		return err
	}
	if err := n.move(ctx, dist); err != nil {
		return err
	}
	n.deps.Pose.Set(position.Pose{X: 0, Y: 0, Heading: angleTo})
	return nil
}

// rotate turns the rover and keeps the pose store in step.
func (n *Navigator) rotate(ctx context.Context, rad float64) error {
	if rad == 0 {
		return nil
	}
	if err := n.deps.Drive.Rotate(ctx, rad); err != nil {
		return fmt.Errorf("rotate %.3f: %w", rad, err)
	}
	n.deps.Pose.Turn(rad)
	return nil
}

// move drives straight and keeps the pose store in step.
func (n *Navigator) move(ctx context.Context, mm float64) error {
	if mm == 0 {
		return nil
	}
	if err := n.deps.Drive.Move(ctx, mm); err != nil {
		return fmt.Errorf("move %.0fmm: %w", mm, err)
	}
	n.deps.Pose.Advance(mm)
	return nil
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
