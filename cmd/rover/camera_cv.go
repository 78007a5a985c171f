//go:build gocv

package main

import (
	"github.com/teslashibe/go-rover/internal/config"
	"github.com/teslashibe/go-rover/pkg/sensor/cvcam"
)

func openCamera(cfg config.CameraConfig) (camera, error) {
	ccfg := cvcam.DefaultConfig()
	ccfg.Device = cfg.Device
	if cfg.MarkerSizeCm > 0 {
		ccfg.MarkerSizeCm = cfg.MarkerSizeCm
	}
	if cfg.FocalPx > 0 {
		ccfg.FocalPx = cfg.FocalPx
	}
	return cvcam.Open(ccfg)
}
