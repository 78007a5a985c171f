package main

import (
	"strings"
	"testing"

	"github.com/golang/geo/r2"

	"github.com/teslashibe/go-rover/internal/config"
)

func TestRun_Version(t *testing.T) {
	if err := run([]string{"--version"}); err != nil {
		t.Errorf("run --version: %v", err)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	err := run([]string{"--drive", "http"})
	if err == nil || !strings.Contains(err.Error(), "drive.addr") {
		t.Errorf("err = %v, want drive.addr validation error", err)
	}
}

func TestNewWorld_PlacesTargets(t *testing.T) {
	cfg := config.Default()
	cfg.Sim.Targets = map[int]config.Point{7: {X: 0, Y: 500}}
	cfg.Sim.Start = config.Point{X: 0, Y: 0}

	refs := map[int]r2.Point{}
	for id, p := range cfg.Beacons {
		refs[id] = r2.Point{X: p.X, Y: p.Y}
	}
	w := newWorld(cfg, refs)

	// Facing +Y, the target is dead ahead.
	w.Rotate(t.Context(), 1.5707963267948966)
	data, err := w.Capture()
	if err != nil {
		t.Fatal(err)
	}
	markers, err := w.DetectMarkers(data)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, m := range markers {
		if m.ID == 7 && m.Distance == 50 {
			found = true
		}
	}
	if !found {
		t.Errorf("target 7 not seen at 50cm: %+v", markers)
	}
}

func TestOpenDrive_Sim(t *testing.T) {
	cfg := config.Default()
	w := newWorld(cfg, nil)
	d, closeFn, err := openDrive(cfg, w)
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	if d == nil {
		t.Error("sim drive should be the world")
	}
}
