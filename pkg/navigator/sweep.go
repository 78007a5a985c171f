package navigator

import (
	"context"
	"errors"
	"fmt"

	"github.com/teslashibe/go-rover/pkg/position"
	"github.com/teslashibe/go-rover/pkg/protocol"
	"github.com/teslashibe/go-rover/pkg/sensor"
)

// sweep polls the camera Polls times per attempt, rotating SweepStep
// between attempts, until visit reports done or the attempts run out.
func (n *Navigator) sweep(ctx context.Context, visit func([]sensor.Marker) bool) (bool, error) {
	for attempt := 0; attempt < n.cfg.Attempts; attempt++ {
		if err := n.freshFrame(ctx); err != nil {
			return false, err
		}
		for poll := 0; poll < n.cfg.Polls; poll++ {
			markers, err := n.deps.Frames.Detect(n.deps.Detector)
			if err != nil {
				n.log.Debug("detect failed", "error", err)
			} else if visit(markers) {
				return true, nil
			}
			if err := sleep(ctx, n.cfg.PollInterval); err != nil {
				return false, err
			}
		}
		if err := n.rotate(ctx, n.cfg.SweepStep); err != nil {
			return false, err
		}
	}
	return false, nil
}

// freshFrame waits for a frame captured after the last motion.
func (n *Navigator) freshFrame(ctx context.Context) error {
	cur, _ := n.deps.Frames.Load()
	wctx, cancel := context.WithTimeout(ctx, n.cfg.SensorTimeout)
	defer cancel()

	// The frame right after a motion may have been grabbed mid-turn.
	if _, err := n.deps.Frames.Next(wctx, cur.Seq+1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n.emit(protocol.NewNotice(protocol.TypeSensorUnavailable, "camera stalled"))
		return fmt.Errorf("%w: no fresh frame", ErrSensorUnavailable)
	}
	return nil
}

// Localize sweeps until MinReferences distinct reference beacons have
// been ranged, faces the last one and triangulates. Falling short is not
// an error: the rover carries on with its dead-reckoned pose.
func (n *Navigator) Localize(ctx context.Context) error {
	var (
		targets []position.TargetDistance
		seen    = map[int]bool{}
		bearing float64
	)
	_, err := n.sweep(ctx, func(markers []sensor.Marker) bool {
		for _, m := range markers {
			if seen[m.ID] || !contains(n.cfg.ReferenceIDs, m.ID) {
				continue
			}
			seen[m.ID] = true
			targets = append(targets, position.TargetDistance{ID: m.ID, Distance: m.Distance * 10})
			bearing = m.HorizontalAngle
			n.log.Debug("reference beacon", "id", m.ID, "distance_mm", m.Distance*10)
		}
		return len(targets) >= n.cfg.MinReferences
	})
	if err != nil {
		return err
	}

	if len(targets) == 0 {
		n.degraded(position.ErrInsufficientBeacons)
		return nil
	}

	if err := n.rotate(ctx, -degToRad(bearing)); err != nil {
		return err
	}
	targets[len(targets)-1].Facing = true

	pose, err := n.deps.Pose.Triangulate(targets)
	if err != nil {
		n.degraded(err)
		return nil
	}
	n.log.Info("localized", "x", pose.X, "y", pose.Y, "heading", pose.Heading, "beacons", len(targets))
	return sleep(ctx, n.cfg.SettleDelay)
}

func (n *Navigator) degraded(err error) {
	if errors.Is(err, position.ErrInsufficientBeacons) || errors.Is(err, position.ErrDegenerate) {
		n.log.Warn("localization degraded, keeping dead-reckoned pose", "error", err)
	} else {
		n.log.Error("localization failed", "error", err)
	}
	n.emit(protocol.NewNotice(protocol.TypeLocalizeDegraded, err.Error()))
}

// Locate sweeps for marker id and turns to face it. It returns nil if
// the marker was never seen.
func (n *Navigator) Locate(ctx context.Context, id int) (*sensor.Marker, error) {
	return n.locate(ctx, func(m sensor.Marker) bool { return m.ID == id })
}

// LocateNext sweeps for any marker outside the excluded ids and turns
// to face it. It returns nil if none was seen.
func (n *Navigator) LocateNext(ctx context.Context) (*sensor.Marker, error) {
	return n.locate(ctx, func(m sensor.Marker) bool { return !contains(n.cfg.ExcludedIDs, m.ID) })
}

func (n *Navigator) locate(ctx context.Context, match func(sensor.Marker) bool) (*sensor.Marker, error) {
	var found *sensor.Marker
	_, err := n.sweep(ctx, func(markers []sensor.Marker) bool {
		for _, m := range markers {
			if match(m) {
				found = &m
				return true
			}
		}
		return false
	})
	if err != nil || found == nil {
		return nil, err
	}

	n.log.Info("target found", "id", found.ID, "distance_cm", found.Distance, "bearing_deg", found.HorizontalAngle)
	if err := n.rotate(ctx, -degToRad(found.HorizontalAngle)); err != nil {
		return nil, err
	}
	// Now centred on it.
	found.HorizontalAngle = 0
	return found, nil
}
