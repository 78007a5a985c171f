package control

import (
	"errors"
	"time"

	"github.com/teslashibe/go-rover/pkg/motion"
	"github.com/teslashibe/go-rover/pkg/position"
	"github.com/teslashibe/go-rover/pkg/protocol"
	"github.com/teslashibe/go-rover/pkg/runlog"
)

// defaultCommandDistance is used when a command omits the stick
// distance.
const defaultCommandDistance = 100

var errCommandAxes = errors.New("command requires angle, x and y")

// dispatch routes an authenticated client's message.
func (s *Server) dispatch(ss *session, msg protocol.Inbound) {
	switch m := msg.(type) {
	case protocol.CommandMessage:
		s.handleCommand(ss, m)
	case protocol.StartAutoMessage:
		s.handleStartAuto(ss, m)
	case protocol.StopServerMessage:
		s.handleStopServer(ss)
	default:
		err := &protocol.UnknownTypeError{Type: msg.MessageType()}
		ss.replyError(err.Error())
	}
}

func (s *Server) handleCommand(ss *session, m protocol.CommandMessage) {
	if s.state.AutoActive() {
		ss.replyError("auto mode active")
		return
	}

	in, err := commandInput(m)
	if err != nil {
		ss.replyError(err.Error())
		return
	}
	out, err := motion.Translate(in)
	if err != nil {
		ss.replyError(err.Error())
		return
	}

	if out.Stop {
		err = s.drive.Stop()
	} else {
		err = s.drive.SetWheelSpeeds(out.Left, out.Right)
	}
	if err != nil {
		ss.log.Error("drive command failed", "error", err)
		ss.replyError("drive error: " + err.Error())
		return
	}

	s.silence.Arm()
	ss.reply(protocol.NewCommandReply(out.Speed))
}

// commandInput fills in the optional command fields.
func commandInput(m protocol.CommandMessage) (motion.Input, error) {
	if m.Angle == nil || m.X == nil || m.Y == nil {
		return motion.Input{}, errCommandAxes
	}
	in := motion.Input{
		Angle:    *m.Angle,
		Distance: defaultCommandDistance,
		X:        *m.X,
		Y:        *m.Y,
		Mode:     motion.ModeSlow,
	}
	if m.Distance != nil {
		in.Distance = *m.Distance
	}
	if m.Mode != nil {
		in.Mode = *m.Mode
	}
	return in, nil
}

func (s *Server) handleStartAuto(ss *session, m protocol.StartAutoMessage) {
	if !s.state.TryStartAuto() {
		ss.replyError("auto mode already active")
		return
	}

	s.silence.Cancel()
	var init protocol.Point
	if m.InitPos != nil {
		init = *m.InitPos
	}
	s.deps.Pose.Set(position.Pose{X: init.X, Y: init.Y})
	s.state.SetRunning(true)

	ss.log.Info("auto mode requested", "x", init.X, "y", init.Y)
	ss.reply(protocol.NewNotice(protocol.TypeAutoStarted, "auto mode started"))

	s.wg.Add(1)
	go s.runNavigator(init)
}

// runNavigator runs one course and hands control back to operators.
func (s *Server) runNavigator(init protocol.Point) {
	defer s.wg.Done()

	run := runlog.Run{
		StartedAt: time.Now(),
		StartX:    init.X,
		StartY:    init.Y,
	}
	before := s.state.Captures()

	s.state.ActivateAuto()
	err := s.nav.Run(s.ctx)
	s.state.EndAuto()
	s.state.SetRunning(false)

	if err != nil {
		s.log.Error("auto mode ended with error", "error", err)
		run.Error = err.Error()
	} else {
		s.log.Info("auto mode ended")
	}
	s.broadcast(protocol.NewAutoStopped(err))

	run.EndedAt = time.Now()
	run.Captures = s.state.Captures() - before
	run.State = s.nav.State().String()
	s.record(run)
}

func (s *Server) record(run runlog.Run) {
	if s.deps.Journal == nil {
		return
	}
	id, err := s.deps.Journal.Append(run)
	if err != nil {
		s.log.Error("run journal write failed", "error", err)
		return
	}
	s.log.Debug("run recorded", "run", id)
}

func (s *Server) handleStopServer(ss *session) {
	ss.log.Info("stop requested by client")
	ss.reply(protocol.NewNotice(protocol.TypeServerStopped, "server stopping"))
	s.Stop()
	ss.client.Close()
}
