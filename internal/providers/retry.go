package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// MaxAttempts is the number of calls made before a retryable failure is
// returned to the caller.
const MaxAttempts = 3

// backoffUnit is the base delay. Timeouts, server and transport errors wait
// backoffUnit*2^attempt; rate limits wait 5*backoffUnit*(attempt+1).
var backoffUnit = time.Second

// AuthError is returned for 401/403 responses. It is never retried.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication error (status %d): %s", e.StatusCode, e.Message)
}

// RateLimitError is returned for 429 responses.
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string { return "rate limited: " + e.Message }

// ServerError is returned for 5xx responses.
type ServerError struct {
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (status %d): %s", e.StatusCode, e.Body)
}

// TimeoutError is returned when a single attempt exceeds Request.Timeout.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %s", e.After)
}

// TransportError wraps a failure to reach the service at all.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "sending request: " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// IsAuthError reports whether err is or wraps an *AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsRateLimit reports whether err is or wraps a *RateLimitError.
func IsRateLimit(err error) bool {
	var re *RateLimitError
	return errors.As(err, &re)
}

// IsTimeout reports whether err is or wraps a *TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// backoffFor returns the wait before the next attempt, or false when err
// should not be retried.
func backoffFor(err error, attempt int) (time.Duration, bool) {
	var (
		rl *RateLimitError
		se *ServerError
		te *TimeoutError
		tr *TransportError
	)
	switch {
	case IsAuthError(err):
		return 0, false
	case errors.As(err, &rl):
		return 5 * backoffUnit * time.Duration(attempt+1), true
	case errors.As(err, &se), errors.As(err, &te), errors.As(err, &tr):
		return backoffUnit * time.Duration(1<<uint(attempt)), true
	default:
		return 0, false
	}
}

// withRetry calls fn up to MaxAttempts times. Each call gets its own
// deadline when timeout is positive. It returns the number of attempts made.
func withRetry(ctx context.Context, log *slog.Logger, timeout time.Duration, fn func(ctx context.Context) error) (int, error) {
	var lastErr error
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		lastErr = callOnce(ctx, timeout, fn)
		if lastErr == nil {
			return attempt + 1, nil
		}
		if ctx.Err() != nil {
			return attempt + 1, ctx.Err()
		}

		wait, retry := backoffFor(lastErr, attempt)
		if !retry || attempt == MaxAttempts-1 {
			return attempt + 1, lastErr
		}

		log.Warn("generation failed, retrying",
			"attempt", attempt+1,
			"backoff", wait,
			"error", lastErr,
		)
		select {
		case <-ctx.Done():
			return attempt + 1, ctx.Err()
		case <-time.After(wait):
		}
	}
	return MaxAttempts, lastErr
}

func callOnce(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(attemptCtx)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{After: timeout}
	}
	return err
}
