// rover: control plane and autonomous navigator for the beacon rover.
//
// Usage:
//
//	rover --config rover.yml
//	rover --drive serial --serial-port /dev/ttyACM0 --camera cv
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/geo/r2"
	"github.com/spf13/pflag"

	"github.com/teslashibe/go-rover/internal/config"
	"github.com/teslashibe/go-rover/internal/log"
	"github.com/teslashibe/go-rover/pkg/control"
	"github.com/teslashibe/go-rover/pkg/drive"
	"github.com/teslashibe/go-rover/pkg/judge"
	"github.com/teslashibe/go-rover/pkg/position"
	"github.com/teslashibe/go-rover/pkg/runlog"
	"github.com/teslashibe/go-rover/pkg/sensor"
	"github.com/teslashibe/go-rover/pkg/sim"
)

var version = "0.1.0"

// camera is a beacon sensor that also needs releasing.
type camera interface {
	sensor.Source
	sensor.Detector
	Close() error
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "rover: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("rover", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "YAML config file")
	listen := fs.String("listen", "", "control plane address (default "+config.DefaultListen+")")
	key := fs.String("key", "", "shared client key")
	judgeURL := fs.String("judge-url", "", "judging service base URL")
	driveKind := fs.String("drive", "", "drive adapter: sim, http, serial")
	driveAddr := fs.String("drive-addr", "", "motor daemon URL for the http drive")
	serialPort := fs.String("serial-port", "", "serial device for the serial drive")
	serialBaud := fs.Int("serial-baud", 0, "serial baud rate")
	cameraKind := fs.String("camera", "", "camera adapter: sim, cv")
	cameraDevice := fs.Int("camera-device", 0, "video capture device index")
	logLevel := fs.String("log-level", "", "debug, info, warn, error")
	webDir := fs.String("web-dir", "", "static operator UI directory")
	journal := fs.String("journal", "", "run history file (bbolt)")
	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Println("rover", version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	// Flags win over the file and the environment.
	if fs.Changed("listen") {
		cfg.Listen = *listen
	}
	if fs.Changed("key") {
		cfg.Key = *key
	}
	if fs.Changed("judge-url") {
		cfg.Judge.URL = *judgeURL
	}
	if fs.Changed("drive") {
		cfg.Drive.Kind = *driveKind
	}
	if fs.Changed("drive-addr") {
		cfg.Drive.Addr = *driveAddr
	}
	if fs.Changed("serial-port") {
		cfg.Drive.SerialPort = *serialPort
	}
	if fs.Changed("serial-baud") {
		cfg.Drive.SerialBaud = *serialBaud
	}
	if fs.Changed("camera") {
		cfg.Camera.Kind = *cameraKind
	}
	if fs.Changed("camera-device") {
		cfg.Camera.Device = *cameraDevice
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if fs.Changed("web-dir") {
		cfg.WebDir = *webDir
	}
	if fs.Changed("journal") {
		cfg.Journal = *journal
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	log.Init(cfg.LogLevel)

	fmt.Println()
	fmt.Println("🛰️  go-rover v" + version)
	fmt.Printf("   drive=%s camera=%s judge=%s\n", cfg.Drive.Kind, cfg.Camera.Kind, cfg.Judge.URL)
	fmt.Println()

	refs := make(map[int]r2.Point, len(cfg.Beacons))
	for id, p := range cfg.Beacons {
		refs[id] = r2.Point{X: p.X, Y: p.Y}
	}

	var world *sim.World
	if cfg.Drive.Kind == config.DriveSim || cfg.Camera.Kind == config.CameraSim {
		world = newWorld(cfg, refs)
		if cfg.Drive.Kind != cfg.Camera.Kind {
			log.Warn("mixing a simulated and a real adapter; the sim camera will not see real motion")
		}
	}

	drv, closeDrive, err := openDrive(cfg, world)
	if err != nil {
		return err
	}
	defer closeDrive()

	var cam camera = simCamera{world}
	if cfg.Camera.Kind == config.CameraCV {
		cam, err = openCamera(cfg.Camera)
		if err != nil {
			return err
		}
	}
	defer cam.Close()

	jc, err := judge.New(cfg.Judge.URL, cfg.Judge.Timeout)
	if err != nil {
		return err
	}

	ccfg := control.DefaultConfig()
	ccfg.Listen = cfg.Listen
	ccfg.Key = cfg.Key
	ccfg.WebDir = cfg.WebDir
	ccfg.AccessLog = log.ParseLevel(cfg.LogLevel) <= slog.LevelDebug
	ccfg.SilenceTimeout = cfg.Safety.SilenceTimeout
	ccfg.CaptureTarget = cfg.Safety.CaptureTarget
	ccfg.CameraInterval = cfg.Loops.Camera
	ccfg.BatteryInterval = cfg.Loops.Battery
	ccfg.TelemetryInterval = cfg.Loops.Telemetry
	if cfg.Navigator.Attempts > 0 {
		ccfg.Navigator.Attempts = cfg.Navigator.Attempts
	}
	if cfg.Navigator.PollInterval > 0 {
		ccfg.Navigator.PollInterval = cfg.Navigator.PollInterval
	}
	if cfg.Navigator.SensorTimeout > 0 {
		ccfg.Navigator.SensorTimeout = cfg.Navigator.SensorTimeout
	}

	deps := control.Deps{
		Drive:    drv,
		Camera:   cam,
		Detector: cam,
		Judge:    jc,
		Pose:     position.NewStore(refs),
		Logger:   log.Component("control"),
	}
	if cfg.Journal != "" {
		store, err := runlog.Open(cfg.Journal)
		if err != nil {
			return err
		}
		defer store.Close()
		deps.Journal = store
	}

	srv, err := control.New(ccfg, deps)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		return err
	}
	log.Info("goodbye")
	return nil
}

func newWorld(cfg config.Config, refs map[int]r2.Point) *sim.World {
	scfg := sim.DefaultConfig()
	scfg.FOVDeg = cfg.Camera.FOVDeg
	scfg.MotionDelay = cfg.Sim.MotionDelay
	scfg.Beacons = make(map[int]r2.Point, len(refs)+len(cfg.Sim.Targets))
	for id, p := range refs {
		scfg.Beacons[id] = p
	}
	for id, p := range cfg.Sim.Targets {
		scfg.Beacons[id] = r2.Point{X: p.X, Y: p.Y}
	}
	w := sim.New(scfg)
	w.SetPose(position.Pose{X: cfg.Sim.Start.X, Y: cfg.Sim.Start.Y})
	return w
}

func openDrive(cfg config.Config, world *sim.World) (drive.Driver, func(), error) {
	switch cfg.Drive.Kind {
	case config.DriveHTTP:
		return drive.NewHTTPDriver(cfg.Drive.Addr, cfg.Drive.Timeout), func() {}, nil
	case config.DriveSerial:
		d, err := drive.OpenSerial(cfg.Drive.SerialPort, cfg.Drive.SerialBaud, cfg.Drive.Timeout)
		if err != nil {
			return nil, nil, err
		}
		return d, func() { d.Close() }, nil
	default:
		return world, func() {}, nil
	}
}

// simCamera adapts the sim world to the camera interface.
type simCamera struct {
	*sim.World
}

func (simCamera) Close() error { return nil }
