package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Safety.SilenceTimeout != 5*time.Second {
		t.Errorf("SilenceTimeout = %v, want 5s", cfg.Safety.SilenceTimeout)
	}
	if cfg.Safety.CaptureTarget != 2 {
		t.Errorf("CaptureTarget = %d, want 2", cfg.Safety.CaptureTarget)
	}
	if len(cfg.Beacons) != 4 {
		t.Errorf("expected 4 reference beacons, got %d", len(cfg.Beacons))
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rover.yml")
	data := `
listen: ":9000"
key: "s3cret"
judge:
  url: "http://judge.local/api"
  timeout: 3s
drive:
  kind: serial
  serial_port: /dev/ttyACM0
safety:
  silence_timeout: 2s
sim:
  motion_delay: 10ms
  targets:
    7: {x: -200, y: 50}
beacons:
  1: {x: 0, y: 1000}
  2: {x: 1000, y: 0}
  3: {x: 0, y: -1000}
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9000" || cfg.Key != "s3cret" {
		t.Errorf("listen/key not loaded: %+v", cfg)
	}
	if cfg.Judge.Timeout != 3*time.Second {
		t.Errorf("Judge.Timeout = %v, want 3s", cfg.Judge.Timeout)
	}
	if cfg.Drive.Kind != DriveSerial || cfg.Drive.SerialBaud != DefaultSerialBaud {
		t.Errorf("drive config wrong: %+v", cfg.Drive)
	}
	if cfg.Safety.SilenceTimeout != 2*time.Second {
		t.Errorf("SilenceTimeout = %v, want 2s", cfg.Safety.SilenceTimeout)
	}
	if cfg.Sim.MotionDelay != 10*time.Millisecond || cfg.Sim.Targets[7].X != -200 {
		t.Errorf("sim config not loaded: %+v", cfg.Sim)
	}
	if len(cfg.Beacons) != 3 || cfg.Beacons[1].Y != 1000 {
		t.Errorf("beacons not replaced: %+v", cfg.Beacons)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ROVER_KEY", "from-env")
	t.Setenv("ROVER_JUDGE_URL", "http://env/api")
	t.Setenv("ROVER_SILENCE_TIMEOUT", "750ms")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Key != "from-env" {
		t.Errorf("Key = %q, want from-env", cfg.Key)
	}
	if cfg.Judge.URL != "http://env/api" {
		t.Errorf("Judge.URL = %q", cfg.Judge.URL)
	}
	if cfg.Safety.SilenceTimeout != 750*time.Millisecond {
		t.Errorf("SilenceTimeout = %v", cfg.Safety.SilenceTimeout)
	}
}

func TestLoad_BadEnvDuration(t *testing.T) {
	t.Setenv("ROVER_SILENCE_TIMEOUT", "soon")
	if _, err := Load(""); err == nil {
		t.Error("expected error for bad duration")
	}
}

func TestValidate_Errors(t *testing.T) {
	cfg := Default()
	cfg.Key = ""
	cfg.Drive.Kind = DriveHTTP
	cfg.Camera.Kind = "thermal"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"key is required", "drive.addr", "thermal"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q missing %q", msg, want)
		}
	}
}
