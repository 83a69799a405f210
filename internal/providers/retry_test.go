package providers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestBackoffFor(t *testing.T) {
	orig := backoffUnit
	backoffUnit = time.Second
	defer func() { backoffUnit = orig }()

	tests := []struct {
		name    string
		err     error
		attempt int
		want    time.Duration
		retry   bool
	}{
		{"server first", &ServerError{StatusCode: 500}, 0, time.Second, true},
		{"server second", &ServerError{StatusCode: 503}, 1, 2 * time.Second, true},
		{"timeout third", &TimeoutError{After: time.Second}, 2, 4 * time.Second, true},
		{"transport", &TransportError{Err: errors.New("refused")}, 1, 2 * time.Second, true},
		{"rate limit first", &RateLimitError{}, 0, 5 * time.Second, true},
		{"rate limit second", &RateLimitError{}, 1, 10 * time.Second, true},
		{"wrapped rate limit", fmt.Errorf("call: %w", &RateLimitError{}), 2, 15 * time.Second, true},
		{"auth", &AuthError{StatusCode: 401}, 0, 0, false},
		{"plain", errors.New("bad request"), 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, retry := backoffFor(tt.err, tt.attempt)
			if retry != tt.retry || got != tt.want {
				t.Errorf("backoffFor() = %v,%v want %v,%v", got, retry, tt.want, tt.retry)
			}
		})
	}
}

func TestClassifiers(t *testing.T) {
	wrapped := fmt.Errorf("summarizing a.go: %w", &AuthError{StatusCode: 403, Message: "forbidden"})
	if !IsAuthError(wrapped) {
		t.Error("IsAuthError should see through wrapping")
	}
	if IsAuthError(errors.New("nope")) {
		t.Error("plain error is not an auth error")
	}
	if !IsRateLimit(&RateLimitError{}) || !IsTimeout(&TimeoutError{}) {
		t.Error("classifier mismatch")
	}
}

func TestWithRetry_StopsOnSuccess(t *testing.T) {
	fastBackoff(t)
	calls := 0
	attempts, err := withRetry(context.Background(), orDiscard(nil), 0, func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return &TransportError{Err: errors.New("reset")}
		}
		return nil
	})
	if err != nil || attempts != 2 || calls != 2 {
		t.Errorf("attempts=%d calls=%d err=%v", attempts, calls, err)
	}
}

func TestWithRetry_PerAttemptTimeout(t *testing.T) {
	fastBackoff(t)
	attempts, err := withRetry(context.Background(), orDiscard(nil), 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if attempts != MaxAttempts {
		t.Errorf("attempts = %d", attempts)
	}
}
