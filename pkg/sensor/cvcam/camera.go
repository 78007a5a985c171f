//go:build gocv

package cvcam

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-rover/pkg/sensor"
)

// Config describes the camera and marker geometry.
type Config struct {
	Device int

	// MarkerSizeCm is the printed side length of a beacon marker.
	MarkerSizeCm float64

	// FocalPx is the horizontal focal length in pixels.
	FocalPx float64
}

// DefaultConfig returns the values used for the rover's stock camera.
func DefaultConfig() Config {
	return Config{
		Device:       0,
		MarkerSizeCm: 10,
		FocalPx:      600,
	}
}

// Camera is a sensor.Source and sensor.Detector backed by OpenCV.
type Camera struct {
	cfg     Config
	capture *gocv.VideoCapture
	frame   gocv.Mat

	detector gocv.ArucoDetector

	mu sync.Mutex // Protects capture and detector
}

var (
	_ sensor.Source   = (*Camera)(nil)
	_ sensor.Detector = (*Camera)(nil)
)

// Open starts capturing from cfg.Device.
func Open(cfg Config) (*Camera, error) {
	if cfg.MarkerSizeCm <= 0 || cfg.FocalPx <= 0 {
		return nil, errors.New("cvcam: marker size and focal length must be positive")
	}

	vc, err := gocv.VideoCaptureDevice(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", cfg.Device, err)
	}

	dict := gocv.GetPredefinedDictionary(gocv.ArucoDict4x4_50)
	params := gocv.NewArucoDetectorParameters()

	return &Camera{
		cfg:      cfg,
		capture:  vc,
		frame:    gocv.NewMat(),
		detector: gocv.NewArucoDetectorWithParams(dict, params),
	}, nil
}

// Capture grabs one frame and returns it JPEG encoded.
func (c *Camera) Capture() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ok := c.capture.Read(&c.frame); !ok || c.frame.Empty() {
		return nil, errors.New("cvcam: empty frame")
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, c.frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// DetectMarkers finds ArUco markers in the JPEG frame. Distance comes
// from the pinhole model using the marker's apparent side length.
func (c *Camera) DetectMarkers(jpeg []byte) ([]sensor.Marker, error) {
	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()

	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	c.mu.Lock()
	corners, ids, _ := c.detector.DetectMarkers(img)
	c.mu.Unlock()

	width := float64(img.Cols())
	markers := make([]sensor.Marker, 0, len(ids))
	for i, id := range ids {
		side, centre := measure(corners[i])
		if side <= 0 {
			continue
		}
		markers = append(markers, sensor.Marker{
			ID:              id,
			Distance:        c.cfg.MarkerSizeCm * c.cfg.FocalPx / side,
			HorizontalAngle: math.Atan((centre.X-width/2)/c.cfg.FocalPx) * 180 / math.Pi,
		})
	}
	return markers, nil
}

// measure returns the mean side length and centre of a marker quad.
func measure(quad []gocv.Point2f) (float64, struct{ X, Y float64 }) {
	var centre struct{ X, Y float64 }
	if len(quad) != 4 {
		return 0, centre
	}
	var side float64
	for i, p := range quad {
		q := quad[(i+1)%4]
		side += math.Hypot(float64(q.X-p.X), float64(q.Y-p.Y))
		centre.X += float64(p.X) / 4
		centre.Y += float64(p.Y) / 4
	}
	return side / 4, centre
}

// Close releases the camera and detector.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detector.Close()
	c.frame.Close()
	return c.capture.Close()
}
