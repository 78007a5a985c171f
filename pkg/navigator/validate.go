package navigator

import (
	"context"
	"math"

	"github.com/golang/geo/r2"

	"github.com/teslashibe/go-rover/pkg/judge"
	"github.com/teslashibe/go-rover/pkg/protocol"
	"github.com/teslashibe/go-rover/pkg/sensor"
)

// Validate approaches a located target and claims it with the judge.
// A nil marker only reports not_found. Judge rejections and transport
// errors are reported and not retried; only drive failures and
// cancellation return an error.
func (n *Navigator) Validate(ctx context.Context, m *sensor.Marker) error {
	if m == nil {
		n.log.Warn("no target to validate")
		n.emit(protocol.NewNotFound())
		return nil
	}
	n.emit(protocol.NewFound(m.ID, m.Distance))

	beacon := n.beaconPosition(*m)
	n.log.Info("approaching target", "id", m.ID, "beacon_cm", beacon)

	if err := n.move(ctx, m.Distance*10-n.cfg.Clearance); err != nil {
		return err
	}

	sub := judge.Submission{
		ID:     m.ID,
		Sector: Sector(beacon),
		Inside: Inside(beacon, n.cfg.InnerRadiusCm),
	}
	status, err := n.deps.Judge.SubmitMarker(ctx, sub)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n.judgeFailed("marker", err)
		return nil
	}

	captures := n.deps.OnCapture()
	n.log.Info("target captured", "id", sub.ID, "sector", sub.Sector, "inside", sub.Inside,
		"status", status, "captures", captures)
	n.emit(protocol.Captured{
		Type:     protocol.TypeCaptured,
		ID:       sub.ID,
		Sector:   sub.Sector,
		Inside:   sub.Inside,
		Status:   status,
		Captures: captures,
	})

	// Full turn in two halves to show the capture.
	if err := n.rotate(ctx, math.Pi); err != nil {
		return err
	}
	return n.rotate(ctx, math.Pi)
}

// beaconPosition returns the marker's arena position in cm from the
// current pose.
func (n *Navigator) beaconPosition(m sensor.Marker) r2.Point {
	p := n.deps.Pose.Pose()
	h := p.Heading - degToRad(m.HorizontalAngle)
	return p.Point().Mul(0.1).Add(r2.Point{X: math.Cos(h), Y: math.Sin(h)}.Mul(m.Distance))
}
