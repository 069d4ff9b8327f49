package tgapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Error represents a non-2xx response from the backend.
//
// It carries the HTTP status and whatever message the backend returned,
// and classifies which statuses are worth retrying.
type Error struct {
	Op         string // Operation that failed, e.g. "search"
	StatusCode int    // HTTP status code
	Message    string // Backend-provided detail, if any
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("tgapi: %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("tgapi: %s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

// Is checks if the target error is a backend error with the same status.
//
// This allows errors.Is(err, &Error{StatusCode: 404}) to work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.StatusCode == t.StatusCode
}

// Temporary returns true if the request should be retried.
//
// Server errors (5xx) and rate limiting (429) are temporary.
func (e *Error) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// TimeoutError is returned when a single attempt exceeds its deadline.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("tgapi: %s: timed out after %s", e.Op, e.After)
}

// Unwrap lets errors.Is(err, ErrTimeout) match.
func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

// Predefined errors for common cases.
var (
	// ErrAuthRequired is returned before any network I/O when an operation
	// needs an identity token and none is configured.
	ErrAuthRequired = errors.New("tgapi: identity token required")

	// ErrTimeout is matched by every TimeoutError.
	ErrTimeout = errors.New("tgapi: request timed out")

	// ErrNoStream is returned by Resolve when the backend answers without
	// a playable URL.
	ErrNoStream = errors.New("tgapi: no stream url in response")
)

// IsTimeout reports whether err is a request timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	return errors.Is(err, &Error{StatusCode: http.StatusNotFound})
}

const maxMessageLen = 200

// newError builds an Error from a response body. FastAPI-style
// {"detail": "..."} bodies are unwrapped; anything else is truncated.
func newError(op string, status int, body []byte) *Error {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}

	msg := ""
	if err := json.Unmarshal(body, &payload); err == nil {
		var detail string
		switch {
		case len(payload.Detail) > 0 && json.Unmarshal(payload.Detail, &detail) == nil:
			msg = detail
		case len(payload.Detail) > 0:
			msg = string(payload.Detail)
		default:
			msg = payload.Message
		}
	} else {
		msg = strings.TrimSpace(string(body))
	}

	if len(msg) > maxMessageLen {
		msg = msg[:maxMessageLen]
	}

	return &Error{Op: op, StatusCode: status, Message: msg}
}
