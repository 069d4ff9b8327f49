package tgapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// request describes a single backend call.
type request struct {
	op      string        // Operation name used in errors and logs
	method  string        // HTTP method
	path    string        // Path relative to the base URL, already escaped
	query   url.Values    // Optional query string
	body    interface{}   // Optional JSON body
	auth    bool          // Attach the Authorization header
	timeout time.Duration // Per-attempt timeout
	retries int           // Additional attempts after the first one
}

const (
	defaultBackoff = 500 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// call performs an HTTP request against the backend with timeout and
// bounded retry, decoding a JSON response into out when out is non-nil.
//
// It handles:
//   - Request construction with JSON body and headers
//   - The tma Authorization header for authenticated endpoints
//   - Per-attempt timeouts reported as ErrTimeout
//   - Retry with exponential backoff on network errors, timeouts, 5xx and 429
//   - Context cancellation
func (c *Client) call(ctx context.Context, req request, out interface{}) error {
	token := c.token()
	if req.auth && token == "" {
		return ErrAuthRequired
	}

	var payload []byte
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		payload = data
	}

	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	attempts := req.retries + 1
	backoff := c.backoff()
	var lastErr error

	for i := 0; i < attempts; i++ {
		c.logDebugf("tgapi: %s %s (attempt %d/%d)", req.method, req.path, i+1, attempts)

		body, status, err := c.do(ctx, req, target, payload, token)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !shouldRetryNetworkError(err) {
				return err
			}
			lastErr = err
		} else if status < 200 || status > 299 {
			apiErr := newError(req.op, status, body)
			if !apiErr.Temporary() {
				return apiErr
			}
			lastErr = apiErr
		} else {
			if out != nil && len(bytes.TrimSpace(body)) > 0 {
				if err := json.Unmarshal(body, out); err != nil {
					return fmt.Errorf("failed to parse %s response: %w", req.op, err)
				}
			}
			c.logDebugf("tgapi: %s succeeded", req.op)
			return nil
		}

		if i == attempts-1 {
			break
		}
		c.logDebugf("tgapi: %s failed, retrying: %v", req.op, lastErr)
		if !sleep(ctx, backoff) {
			return ctx.Err()
		}
		backoff = nextBackoff(backoff)
	}

	// The final attempt's error is returned as is so callers can match it.
	return lastErr
}

// do runs one attempt bounded by the request timeout.
func (c *Client) do(ctx context.Context, req request, target string, payload []byte, token string) ([]byte, int, error) {
	attemptCtx := ctx
	if req.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, req.timeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.method, target, bodyReader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("X-Request-Id", uuid.NewString())
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.auth {
		httpReq.Header.Set("Authorization", "tma "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(attemptCtx, ctx, err) {
			return nil, 0, &TimeoutError{Op: req.op, After: req.timeout}
		}
		return nil, 0, fmt.Errorf("http request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(attemptCtx, ctx, err) {
			return nil, 0, &TimeoutError{Op: req.op, After: req.timeout}
		}
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}

	return body, resp.StatusCode, nil
}

// isTimeout reports whether err came from the per-attempt deadline rather
// than from cancellation of the caller's context.
func isTimeout(attemptCtx, parent context.Context, err error) bool {
	if parent.Err() != nil {
		return false
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// shouldRetryNetworkError checks if a transport-level error is retryable.
func shouldRetryNetworkError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrTimeout) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func (c *Client) backoff() time.Duration {
	if c.retryBackoff > 0 {
		return c.retryBackoff
	}
	return defaultBackoff
}

// sleep waits for the specified duration or until context is cancelled.
// Returns true if sleep completed, false if context was cancelled.
func sleep(ctx context.Context, duration time.Duration) bool {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// nextBackoff doubles the backoff, capped at maxBackoff.
func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
