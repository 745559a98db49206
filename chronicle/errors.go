package chronicle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// APIError is a non-2xx response from the Chronicle API.
type APIError struct {
	// Status is the HTTP status code.
	Status int
	// Code is the Google status name, e.g. PERMISSION_DENIED.
	Code string
	// Message is the human readable detail from the error envelope.
	Message string
	// Body holds the raw response for diagnostics.
	Body []byte
	// RetryAfter is the server's back-off hint, if any.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Message != "" {
		if e.Code != "" {
			return fmt.Sprintf("chronicle: %d %s: %s", e.Status, e.Code, e.Message)
		}
		return fmt.Sprintf("chronicle: %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("chronicle: status %d", e.Status)
}

// Temporary reports whether the request may succeed if repeated.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// TransportError wraps a failure to complete the HTTP exchange.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("chronicle: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

type googleErrorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func decodeAPIError(resp *http.Response, body []byte, now time.Time) *APIError {
	apiErr := &APIError{
		Status:     resp.StatusCode,
		Body:       body,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), now),
	}
	var env googleErrorEnvelope
	if len(body) > 0 && json.Unmarshal(body, &env) == nil {
		apiErr.Code = env.Error.Status
		apiErr.Message = env.Error.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(http.StatusText(resp.StatusCode))
	}
	return apiErr
}

func parseRetryAfter(raw string, now time.Time) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds * float64(time.Second))
	}
	if ts, err := http.ParseTime(raw); err == nil {
		if delay := ts.Sub(now); delay > 0 {
			return delay
		}
	}
	return 0
}

// IsRetryable reports whether err is a transient Chronicle failure.
// A TransportError is always transient: the client returns the caller's
// context error instead when the caller gave up, so a wrapped deadline here
// is the per-attempt timeout.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var tErr *TransportError
	if errors.As(err, &tErr) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return false
}

// RetryAfter extracts the server back-off hint from err.
func RetryAfter(err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}
