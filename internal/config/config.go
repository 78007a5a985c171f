// Package config provides configuration loading for go-rover.
//
// Values come from three layers, later layers win: built-in defaults,
// an optional YAML file, then ROVER_* environment variables. Command-line
// flags in cmd/rover are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values.
const (
	DefaultListen = ":8765"
	DefaultKey    = "1234"

	DefaultJudgeURL = "http://proj103.r2.enst.fr/api"

	DefaultSerialBaud = 115200
)

// Drive kinds.
const (
	DriveSim    = "sim"
	DriveHTTP   = "http"
	DriveSerial = "serial"
)

// Camera kinds.
const (
	CameraSim = "sim"
	CameraCV  = "cv"
)

// Config is the root configuration for the rover supervisor.
type Config struct {
	// Listen is the control-plane address (websocket + REST).
	Listen string `yaml:"listen"`

	// Key is the shared secret every client must present first.
	Key string `yaml:"key"`

	// WebDir, when set, is served as static files at "/".
	WebDir string `yaml:"web_dir"`

	LogLevel string `yaml:"log_level"`

	// Journal is the run history file. Empty disables it.
	Journal string `yaml:"journal"`

	Judge  JudgeConfig  `yaml:"judge"`
	Drive  DriveConfig  `yaml:"drive"`
	Camera CameraConfig `yaml:"camera"`
	Safety SafetyConfig `yaml:"safety"`
	Loops  LoopConfig   `yaml:"loops"`

	Navigator NavigatorConfig `yaml:"navigator"`
	Sim       SimConfig       `yaml:"sim"`

	// Beacons maps reference beacon ids to arena coordinates in mm.
	Beacons map[int]Point `yaml:"beacons"`
}

// Point is an arena coordinate in millimetres.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// JudgeConfig configures the remote judging service client.
type JudgeConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// DriveConfig selects and configures the drive adapter.
type DriveConfig struct {
	Kind       string        `yaml:"kind"` // sim, http, serial
	Addr       string        `yaml:"addr"` // motor daemon base URL (http)
	SerialPort string        `yaml:"serial_port"`
	SerialBaud int           `yaml:"serial_baud"`
	Timeout    time.Duration `yaml:"timeout"` // per-motion completion timeout
}

// CameraConfig selects and configures the beacon sensor adapter.
type CameraConfig struct {
	Kind         string  `yaml:"kind"` // sim, cv
	Device       int     `yaml:"device"`
	MarkerSizeCm float64 `yaml:"marker_size_cm"`
	FocalPx      float64 `yaml:"focal_px"`
	FOVDeg       float64 `yaml:"fov_deg"`
}

// SafetyConfig configures the watchdogs.
type SafetyConfig struct {
	SilenceTimeout time.Duration `yaml:"silence_timeout"`
	CaptureTarget  int           `yaml:"capture_target"`
}

// LoopConfig configures the background poll intervals.
type LoopConfig struct {
	Camera    time.Duration `yaml:"camera"`
	Battery   time.Duration `yaml:"battery"`
	Telemetry time.Duration `yaml:"telemetry"`
}

// NavigatorConfig holds the navigator knobs exposed to operators. Zero
// values keep the navigator's defaults.
type NavigatorConfig struct {
	Attempts      int           `yaml:"attempts"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	SensorTimeout time.Duration `yaml:"sensor_timeout"`
}

// SimConfig describes the simulated arena used by the sim drive and
// camera.
type SimConfig struct {
	// Targets are extra markers placed in the arena, in mm.
	Targets     map[int]Point `yaml:"targets"`
	MotionDelay time.Duration `yaml:"motion_delay"`

	// Start is where the simulated rover is placed at boot.
	Start Point `yaml:"start"`
}

// Default returns the configuration used when nothing else is given.
func Default() Config {
	return Config{
		Listen:   DefaultListen,
		Key:      DefaultKey,
		LogLevel: "info",
		Judge: JudgeConfig{
			URL:     DefaultJudgeURL,
			Timeout: 10 * time.Second,
		},
		Drive: DriveConfig{
			Kind:       DriveSim,
			SerialBaud: DefaultSerialBaud,
			Timeout:    30 * time.Second,
		},
		Camera: CameraConfig{
			Kind:         CameraSim,
			MarkerSizeCm: 10,
			FocalPx:      600,
			FOVDeg:       62,
		},
		Safety: SafetyConfig{
			SilenceTimeout: 5 * time.Second,
			CaptureTarget:  2,
		},
		Loops: LoopConfig{
			Camera:    20 * time.Millisecond,
			Battery:   100 * time.Millisecond,
			Telemetry: time.Second,
		},
		Sim: SimConfig{
			MotionDelay: 50 * time.Millisecond,
		},
		Beacons: DefaultBeacons(),
	}
}

// DefaultBeacons returns the fixed reference beacon layout in mm.
func DefaultBeacons() map[int]Point {
	return map[int]Point{
		1: {X: 0, Y: 1500},
		2: {X: 1500, Y: 0},
		3: {X: 0, Y: -1500},
		4: {X: -1500, Y: 0},
	}
}

// Load reads path (if non-empty) over the defaults, then applies
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		// yaml merges into non-nil maps; a file's beacon layout replaces
		// the default one rather than extending it.
		cfg.Beacons = nil
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if cfg.Beacons == nil {
			cfg.Beacons = DefaultBeacons()
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides fields from ROVER_* environment variables.
func (c *Config) applyEnv() error {
	if v := os.Getenv("ROVER_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("ROVER_KEY"); v != "" {
		c.Key = v
	}
	if v := os.Getenv("ROVER_JUDGE_URL"); v != "" {
		c.Judge.URL = v
	}
	if v := os.Getenv("ROVER_DRIVE"); v != "" {
		c.Drive.Kind = v
	}
	if v := os.Getenv("ROVER_DRIVE_ADDR"); v != "" {
		c.Drive.Addr = v
	}
	if v := os.Getenv("ROVER_SERIAL_PORT"); v != "" {
		c.Drive.SerialPort = v
	}
	if v := os.Getenv("ROVER_CAMERA"); v != "" {
		c.Camera.Kind = v
	}
	if v := os.Getenv("ROVER_JOURNAL"); v != "" {
		c.Journal = v
	}
	if v := os.Getenv("ROVER_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("ROVER_SILENCE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: ROVER_SILENCE_TIMEOUT: %w", err)
		}
		c.Safety.SilenceTimeout = d
	}
	if v := os.Getenv("ROVER_SERIAL_BAUD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: ROVER_SERIAL_BAUD: %w", err)
		}
		c.Drive.SerialBaud = n
	}
	return nil
}

// Validate checks the configuration for values the rover cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if c.Key == "" {
		errs = append(errs, errors.New("key is required"))
	}
	switch c.Drive.Kind {
	case DriveSim:
	case DriveHTTP:
		if c.Drive.Addr == "" {
			errs = append(errs, errors.New("drive.addr is required for http drive"))
		}
	case DriveSerial:
		if c.Drive.SerialPort == "" {
			errs = append(errs, errors.New("drive.serial_port is required for serial drive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown drive kind %q", c.Drive.Kind))
	}
	switch c.Camera.Kind {
	case CameraSim, CameraCV:
	default:
		errs = append(errs, fmt.Errorf("unknown camera kind %q", c.Camera.Kind))
	}
	if c.Safety.SilenceTimeout <= 0 {
		errs = append(errs, errors.New("safety.silence_timeout must be positive"))
	}
	if c.Safety.CaptureTarget <= 0 {
		errs = append(errs, errors.New("safety.capture_target must be positive"))
	}
	if len(c.Beacons) < 3 {
		errs = append(errs, fmt.Errorf("need at least 3 reference beacons, have %d", len(c.Beacons)))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
