// Package control is the rover's control plane: an authenticated
// websocket endpoint for operators, the background telemetry loops and
// the hand-off between manual driving and the autonomous navigator.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/teslashibe/go-rover/internal/log"
	"github.com/teslashibe/go-rover/pkg/drive"
	"github.com/teslashibe/go-rover/pkg/hub"
	"github.com/teslashibe/go-rover/pkg/navigator"
	"github.com/teslashibe/go-rover/pkg/position"
	"github.com/teslashibe/go-rover/pkg/protocol"
	"github.com/teslashibe/go-rover/pkg/runlog"
	"github.com/teslashibe/go-rover/pkg/sensor"
	"github.com/teslashibe/go-rover/pkg/watchdog"
)

// Judge is the judging service as the control plane uses it.
type Judge interface {
	navigator.Judge
	ReportPosition(ctx context.Context, xCm, yCm float64) error
}

// Config holds the server's knobs.
type Config struct {
	Listen string
	Key    string

	// WebDir, when set, is served as static files.
	WebDir string

	// AccessLog enables fiber's request logger.
	AccessLog bool

	SilenceTimeout time.Duration
	CaptureTarget  int
	CapturePoll    time.Duration

	CameraInterval    time.Duration
	BatteryInterval   time.Duration
	TelemetryInterval time.Duration

	ShutdownTimeout time.Duration

	Hub       hub.Config
	Navigator navigator.Config
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		Listen:            ":8765",
		SilenceTimeout:    watchdog.DefaultSilenceDelay,
		CaptureTarget:     watchdog.DefaultCaptureTarget,
		CapturePoll:       watchdog.DefaultCapturePoll,
		CameraInterval:    20 * time.Millisecond,
		BatteryInterval:   100 * time.Millisecond,
		TelemetryInterval: time.Second,
		ShutdownTimeout:   5 * time.Second,
		Hub:               hub.DefaultConfig(),
		Navigator:         navigator.DefaultConfig(),
	}
}

// Journal records finished runs.
type Journal interface {
	Append(r runlog.Run) (uint64, error)
	Recent(n int) ([]runlog.Run, error)
}

// Deps are the rover's ports. Journal is optional.
type Deps struct {
	Drive    drive.Driver
	Camera   sensor.Source
	Detector sensor.Detector
	Judge    Judge
	Pose     *position.Store
	Journal  Journal
	Logger   *slog.Logger
}

// Server is the control plane.
type Server struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	app     *fiber.App
	hub     *hub.Hub
	state   *State
	drive   *drive.Serialized
	frames  *sensor.Latest
	silence *watchdog.SilenceTimer
	nav     *navigator.Navigator

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// New wires a server. Zero config durations keep their defaults.
func New(cfg Config, deps Deps) (*Server, error) {
	cfg = withDefaults(cfg)
	switch {
	case cfg.Key == "":
		return nil, errors.New("control: key is required")
	case deps.Drive == nil:
		return nil, errors.New("control: drive is required")
	case deps.Camera == nil || deps.Detector == nil:
		return nil, errors.New("control: camera and detector are required")
	case deps.Judge == nil:
		return nil, errors.New("control: judge is required")
	case deps.Pose == nil:
		return nil, errors.New("control: pose store is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = log.Component("control")
	}

	drv, ok := deps.Drive.(*drive.Serialized)
	if !ok {
		drv = drive.NewSerialized(deps.Drive)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		log:    logger,
		hub:    hub.New(cfg.Hub),
		state:  &State{},
		drive:  drv,
		frames: sensor.NewLatest(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.silence = watchdog.NewSilenceTimer(cfg.SilenceTimeout, s.onSilence)
	s.nav = navigator.New(cfg.Navigator, navigator.Deps{
		Drive:     drv,
		Frames:    s.frames,
		Detector:  deps.Detector,
		Pose:      deps.Pose,
		Judge:     deps.Judge,
		Bus:       s.hub,
		OnCapture: s.state.AddCapture,
		Logger:    logger.With("component", "navigator"),
	})
	s.app = s.newApp()
	return s, nil
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Listen == "" {
		cfg.Listen = def.Listen
	}
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = def.SilenceTimeout
	}
	if cfg.CaptureTarget <= 0 {
		cfg.CaptureTarget = def.CaptureTarget
	}
	if cfg.CapturePoll <= 0 {
		cfg.CapturePoll = def.CapturePoll
	}
	if cfg.CameraInterval <= 0 {
		cfg.CameraInterval = def.CameraInterval
	}
	if cfg.BatteryInterval <= 0 {
		cfg.BatteryInterval = def.BatteryInterval
	}
	if cfg.TelemetryInterval <= 0 {
		cfg.TelemetryInterval = def.TelemetryInterval
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.Hub.Name == "" {
		cfg.Hub.Name = def.Hub.Name
	}
	return cfg
}

func (s *Server) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "go-rover",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())
	if s.cfg.AccessLog {
		app.Use(logger.New())
	}

	ws := websocket.New(s.handleWS)

	// Operators connect at the root; plain GETs fall through to the UI.
	app.Get("/", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return ws(c)
		}
		return c.Next()
	})

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", ws)

	s.RegisterAPIRoutes(app.Group("/api"))

	if s.cfg.WebDir != "" {
		app.Static("/", s.cfg.WebDir)
	}
	return app
}

// App returns the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// State returns the shared rover state.
func (s *Server) State() *State {
	return s.state
}

// Hub returns the broadcast hub.
func (s *Server) Hub() *hub.Hub {
	return s.hub
}

// Navigator returns the autonomous navigator.
func (s *Server) Navigator() *navigator.Navigator {
	return s.nav
}

// Done is closed once shutdown has been requested.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Run listens on the configured address and serves until ctx is
// cancelled or a client sends stop_server.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("control: listen %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("control plane listening", "addr", ln.Addr().String())
	s.start()

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.done:
		}
	}()

	errc := make(chan error, 1)
	go func() { errc <- s.app.Listener(ln) }()

	select {
	case err := <-errc:
		s.Stop()
		s.wg.Wait()
		return fmt.Errorf("control: serve: %w", err)
	case <-s.done:
	}

	err := s.app.ShutdownWithTimeout(s.cfg.ShutdownTimeout)
	<-errc
	s.wg.Wait()
	s.log.Info("control plane stopped")
	return err
}

// start launches the hub and the background loops.
func (s *Server) start() {
	s.goLoop(s.hub.Run)
	s.goLoop(s.cameraLoop)
	s.goLoop(s.batteryLoop)
	s.goLoop(s.telemetryLoop)
	s.goLoop(func(ctx context.Context) {
		watchdog.CaptureWatcher{
			Count:  s.state.Captures,
			Target: s.cfg.CaptureTarget,
			Poll:   s.cfg.CapturePoll,
			OnDone: s.onFinished,
		}.Watch(ctx)
	})
}

func (s *Server) goLoop(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

// Stop requests shutdown: the drive is stopped, every loop and the
// navigator are cancelled and Done is closed. It is safe to call more
// than once.
func (s *Server) Stop() {
	if !s.state.markStopped() {
		return
	}
	s.log.Info("shutting down")
	s.silence.Cancel()
	// Cancel first so an in-flight motion releases the drive.
	s.cancel()
	if err := s.drive.Stop(); err != nil {
		s.log.Error("drive stop failed", "error", err)
	}
	close(s.done)
}

func (s *Server) onSilence() {
	if s.state.AutoActive() {
		return
	}
	s.log.Info("no command received, stopping")
	if err := s.drive.Stop(); err != nil {
		s.log.Error("drive stop failed", "error", err)
	}
}

func (s *Server) onFinished() {
	s.state.SetRunning(false)
	s.log.Info("course complete", "captures", s.state.Captures())
	s.broadcast(protocol.NewFinished())
}

func (s *Server) broadcast(v any) {
	if err := s.hub.BroadcastJSON(v); err != nil {
		s.log.Debug("broadcast dropped", "error", err)
	}
}
