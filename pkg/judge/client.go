// Package judge is a client for the remote judging service that tracks
// the rover's position and validates captured markers.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/teslashibe/go-rover/internal/httpc"
)

// DefaultTimeout bounds every judge request.
const DefaultTimeout = 10 * time.Second

// Client calls the judging service.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the service at baseURL.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, ErrNoBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpc.NewClient(timeout),
	}, nil
}

// BaseURL returns the service URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Submission is a marker capture claim.
type Submission struct {
	ID     int
	Sector string
	Inside bool
}

// ReportPosition sends the rover position in cm.
func (c *Client) ReportPosition(ctx context.Context, xCm, yCm float64) error {
	q := url.Values{}
	q.Set("x", strconv.FormatFloat(xCm, 'f', -1, 64))
	q.Set("y", strconv.FormatFloat(yCm, 'f', -1, 64))

	resp, err := httpc.PostEmpty(ctx, c.http, c.baseURL+"/pos?"+q.Encode())
	if err != nil {
		return fmt.Errorf("judge pos: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus("pos", resp)
}

// SubmitMarker claims a capture. It returns the HTTP status; 200 and 503
// both mean the capture was recorded and return a nil error.
func (c *Client) SubmitMarker(ctx context.Context, s Submission) (int, error) {
	inner := "0"
	if s.Inside {
		inner = "1"
	}
	q := url.Values{}
	q.Set("id", strconv.Itoa(s.ID))
	q.Set("sector", s.Sector)
	q.Set("inner", inner)

	resp, err := httpc.PostEmpty(ctx, c.http, c.baseURL+"/marker?"+q.Encode())
	if err != nil {
		return 0, fmt.Errorf("judge marker: %w", err)
	}
	defer resp.Body.Close()

	if Accepted(resp.StatusCode) {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	return resp.StatusCode, checkStatus("marker", resp)
}

// Accepted reports whether a marker submission status counts as a capture.
func Accepted(status int) bool {
	return status == http.StatusOK || status == http.StatusServiceUnavailable
}

// Status returns the ids of markers the service has accepted.
func (c *Client) Status(ctx context.Context) ([]int, error) {
	var body struct {
		Markers []struct {
			ID int `json:"id"`
		} `json:"markers"`
	}
	if err := c.getJSON(ctx, "status", &body); err != nil {
		return nil, err
	}
	ids := make([]int, len(body.Markers))
	for i, m := range body.Markers {
		ids[i] = m.ID
	}
	return ids, nil
}

// Worklist returns the marker ids still to pursue, in order.
func (c *Client) Worklist(ctx context.Context) ([]int, error) {
	var body struct {
		Markers []int `json:"markers"`
	}
	if err := c.getJSON(ctx, "list", &body); err != nil {
		return nil, err
	}
	return body.Markers, nil
}

// Next returns the first worklist entry.
func (c *Client) Next(ctx context.Context) (int, error) {
	ids, err := c.Worklist(ctx)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, ErrEmptyWorklist
	}
	return ids[0], nil
}

func (c *Client) getJSON(ctx context.Context, op string, v any) error {
	resp, err := httpc.Get(ctx, c.http, c.baseURL+"/"+op)
	if err != nil {
		return fmt.Errorf("judge %s: %w", op, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(op, resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("judge %s: decode: %w", op, err)
	}
	return nil
}

func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &APIError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}
}
