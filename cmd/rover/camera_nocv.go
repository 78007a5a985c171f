//go:build !gocv

package main

import (
	"errors"

	"github.com/teslashibe/go-rover/internal/config"
)

func openCamera(config.CameraConfig) (camera, error) {
	return nil, errors.New("camera kind cv needs a build with -tags gocv")
}
