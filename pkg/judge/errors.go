package judge

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for common error conditions.
var (
	// ErrNoBaseURL is returned when the client has no service URL.
	ErrNoBaseURL = errors.New("judge: base URL required")

	// ErrEmptyWorklist is returned when the service has nothing left to
	// pursue.
	ErrEmptyWorklist = errors.New("judge: worklist is empty")
)

// APIError represents a non-success response from the judging service.
type APIError struct {
	// Op is the endpoint that failed, e.g. "marker".
	Op string

	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the response body, trimmed.
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("judge %s: API error %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("judge %s: API error %d: %s", e.Op, e.StatusCode, e.Message)
}

// IsNotFound returns true if the resource was not found (HTTP 404).
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsBadRequest returns true if the service rejected the parameters (HTTP 400).
func (e *APIError) IsBadRequest() bool {
	return e.StatusCode == http.StatusBadRequest
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
