package cardsync

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"cartera/internal/infrastructure/aggregator"
)

func newTestExecutor(cfg RetryConfig, slept *[]time.Duration) *Executor {
	e := NewExecutor(cfg)
	e.sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	e.jitter = func(max time.Duration) time.Duration { return 0 }
	return e
}

func rateLimitErr() error {
	return &aggregator.APIError{StatusCode: http.StatusTooManyRequests, ErrorCode: aggregator.ErrorCodeRateLimit}
}

func TestExecutorSucceedsFirstTry(t *testing.T) {
	var slept []time.Duration
	e := newTestExecutor(RetryConfig{}, &slept)

	calls := 0
	err := e.Do(context.Background(), "fetch", func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if len(slept) != 0 {
		t.Errorf("expected no sleeps, got %v", slept)
	}
}

func TestExecutorExponentialBackoffOnRateLimit(t *testing.T) {
	var slept []time.Duration
	e := newTestExecutor(RetryConfig{MaxAttempts: 4, BaseDelay: time.Second}, &slept)

	calls := 0
	err := e.Do(context.Background(), "fetch", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return rateLimitErr()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []time.Duration{1 * time.Second, 2 * time.Second}
	if len(slept) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), slept)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Errorf("sleep %d: expected %v, got %v", i, want[i], slept[i])
		}
	}
}

func TestExecutorRateLimitExhaustion(t *testing.T) {
	var slept []time.Duration
	e := newTestExecutor(RetryConfig{MaxAttempts: 3}, &slept)

	calls := 0
	err := e.Do(context.Background(), "fetch", func(ctx context.Context) error {
		calls++
		return rateLimitErr()
	})
	if !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	// No sleep after the final attempt.
	if len(slept) != 2 {
		t.Errorf("expected 2 sleeps, got %d", len(slept))
	}
}

func TestExecutorLinearBackoffOnTransient(t *testing.T) {
	var slept []time.Duration
	e := newTestExecutor(RetryConfig{TransientAttempts: 3, TransientDelay: 2 * time.Second}, &slept)

	calls := 0
	err := e.Do(context.Background(), "fetch", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &aggregator.APIError{StatusCode: http.StatusBadGateway}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(slept) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), slept)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Errorf("sleep %d: expected %v, got %v", i, want[i], slept[i])
		}
	}
}

func TestExecutorTransientExhaustionReturnsOriginal(t *testing.T) {
	var slept []time.Duration
	e := newTestExecutor(RetryConfig{TransientAttempts: 2}, &slept)

	transient := &aggregator.APIError{StatusCode: http.StatusServiceUnavailable}
	err := e.Do(context.Background(), "fetch", func(ctx context.Context) error {
		return transient
	})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *aggregator.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected original transient error wrapped, got %v", err)
	}
	if errors.Is(err, ErrRateLimitExceeded) {
		t.Error("transient exhaustion must not report rate limiting")
	}
}

func TestExecutorNonRetryableFailsImmediately(t *testing.T) {
	var slept []time.Duration
	e := newTestExecutor(RetryConfig{}, &slept)

	calls := 0
	err := e.Do(context.Background(), "fetch", func(ctx context.Context) error {
		calls++
		return &aggregator.APIError{StatusCode: http.StatusUnauthorized, ErrorCode: aggregator.ErrorCodeLoginRequired}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if len(slept) != 0 {
		t.Errorf("expected no sleeps, got %v", slept)
	}
	if !aggregator.IsReconnectRequired(err) {
		t.Errorf("classification lost through wrapping: %v", err)
	}
}

func TestExecutorJitterBounded(t *testing.T) {
	for range 100 {
		j := randomJitter(2 * time.Second)
		if j < 0 || j >= 2*time.Second {
			t.Fatalf("jitter %v outside [0, 2s)", j)
		}
	}
	if randomJitter(0) != 0 {
		t.Error("zero max must yield zero jitter")
	}
}

func TestExecutorContextCancelledDuringBackoff(t *testing.T) {
	e := NewExecutor(RetryConfig{})
	e.jitter = func(max time.Duration) time.Duration { return 0 }

	ctx, cancel := context.WithCancel(context.Background())
	e.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	err := e.Do(ctx, "fetch", func(ctx context.Context) error {
		return rateLimitErr()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
