package control

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/teslashibe/go-rover/pkg/drive"
	"github.com/teslashibe/go-rover/pkg/hub"
	"github.com/teslashibe/go-rover/pkg/protocol"
)

// cameraLoop keeps the latest frame fresh for the navigator and streams
// frames that changed to operators.
func (s *Server) cameraLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CameraInterval)
	defer ticker.Stop()

	var prev []byte
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		data, err := s.deps.Camera.Capture()
		if err != nil {
			s.log.Debug("camera capture failed", "error", err)
			continue
		}
		s.frames.Store(data)
		if bytes.Equal(data, prev) {
			continue
		}
		prev = data

		msg, err := hub.EncodeJSON(protocol.NewCameraFrame(data))
		if err != nil {
			continue
		}
		s.hub.TryBroadcast(msg)
	}
}

// batteryLoop broadcasts the battery level whenever it changes.
func (s *Server) batteryLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.BatteryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		level, err := s.drive.Battery()
		if errors.Is(err, drive.ErrNoBattery) {
			s.log.Info("drive has no battery gauge")
			return
		}
		if err != nil {
			s.log.Debug("battery read failed", "error", err)
			continue
		}
		if s.state.SetBattery(level) {
			s.broadcast(protocol.NewBattery(level))
		}
	}
}

// telemetryLoop reports the pose to the judge while the course runs.
// Only the first failure of a streak is broadcast.
func (s *Server) telemetryLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TelemetryInterval)
	defer ticker.Stop()

	failing := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !s.state.Running() {
			continue
		}

		p := s.deps.Pose.Pose()
		err := s.deps.Judge.ReportPosition(ctx, p.X/10, p.Y/10)
		switch {
		case err != nil && ctx.Err() != nil:
			return
		case err != nil && !failing:
			s.log.Warn("position report failed", "error", err)
			s.broadcast(protocol.NewJudgeError("pos", err))
			failing = true
		case err == nil && failing:
			s.log.Info("position reports recovered")
			failing = false
		}
	}
}
