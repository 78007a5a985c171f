package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-rover/internal/httpc"
)

// HTTPDriver drives the rover through the motor daemon's REST API.
type HTTPDriver struct {
	BaseURL string
	client  *http.Client
}

// NewHTTPDriver creates a driver for the daemon at baseURL. timeout bounds
// a single motion, so it should cover the slowest rotate or move.
func NewHTTPDriver(baseURL string, timeout time.Duration) *HTTPDriver {
	return &HTTPDriver{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  httpc.NewClient(timeout),
	}
}

// Rotate turns in place by rad.
func (d *HTTPDriver) Rotate(ctx context.Context, rad float64) error {
	return d.post(ctx, "/api/rotate", map[string]float64{"rad": rad})
}

// Move drives mm straight ahead.
func (d *HTTPDriver) Move(ctx context.Context, mm float64) error {
	return d.post(ctx, "/api/move", map[string]float64{"mm": mm})
}

// SetWheelSpeeds sets both wheel speeds.
func (d *HTTPDriver) SetWheelSpeeds(left, right float64) error {
	return d.post(context.Background(), "/api/wheels", map[string]float64{"left": left, "right": right})
}

// Stop halts both wheels.
func (d *HTTPDriver) Stop() error {
	return d.post(context.Background(), "/api/stop", struct{}{})
}

// Battery returns the daemon's battery reading.
func (d *HTTPDriver) Battery() (float64, error) {
	resp, err := httpc.Get(context.Background(), d.client, d.BaseURL+"/api/battery")
	if err != nil {
		return 0, fmt.Errorf("battery request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return 0, err
	}

	var body struct {
		Level float64 `json:"level"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode battery: %w", err)
	}
	return body.Level, nil
}

// post sends a command to the daemon and waits for it to complete.
func (d *HTTPDriver) post(ctx context.Context, path string, payload any) error {
	resp, err := httpc.PostJSON(ctx, d.client, d.BaseURL+path, payload)
	if err != nil {
		return fmt.Errorf("drive %s failed: %w", path, err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode/100 == 2 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("drive %s: status %d: %s", resp.Request.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
}
