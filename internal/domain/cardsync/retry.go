package cardsync

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"cartera/internal/infrastructure/aggregator"
)

const (
	// DefaultMaxAttempts applies to rate-limited operations.
	DefaultMaxAttempts = 6
	// DefaultBaseDelay seeds the exponential backoff.
	DefaultBaseDelay = 1 * time.Second
	// DefaultMaxJitter bounds the random jitter added to each backoff step,
	// spreading out retries so concurrent syncs don't hammer the aggregator
	// in lockstep.
	DefaultMaxJitter = 2 * time.Second

	// Transient network errors get a gentler linear backoff with fewer tries.
	defaultTransientAttempts = 3
	defaultTransientDelay    = 2 * time.Second
)

// RetryConfig tunes the executor. Zero values fall back to the defaults.
type RetryConfig struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxJitter         time.Duration
	TransientAttempts int
	TransientDelay    time.Duration
}

// Executor wraps aggregator calls with backoff retry. Rate-limit errors get
// exponential backoff plus jitter; transient network errors get linear
// backoff; everything else propagates immediately.
type Executor struct {
	cfg RetryConfig

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
	// jitter returns a random duration in [0, max).
	jitter func(max time.Duration) time.Duration
}

// NewExecutor creates an executor with the given config.
func NewExecutor(cfg RetryConfig) *Executor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxJitter <= 0 {
		cfg.MaxJitter = DefaultMaxJitter
	}
	if cfg.TransientAttempts <= 0 {
		cfg.TransientAttempts = defaultTransientAttempts
	}
	if cfg.TransientDelay <= 0 {
		cfg.TransientDelay = defaultTransientDelay
	}

	return &Executor{
		cfg:    cfg,
		sleep:  sleepContext,
		jitter: randomJitter,
	}
}

// Do runs fn, retrying per the error classification. op names the operation
// for logging.
func (e *Executor) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	transientTries := 0

	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		switch {
		case aggregator.IsRateLimited(err):
			if attempt == e.cfg.MaxAttempts {
				log.Printf("%s: rate limited, retries exhausted after %d attempts", op, attempt)
				return fmt.Errorf("%s: %w", op, ErrRateLimitExceeded)
			}
			delay := e.cfg.BaseDelay<<(attempt-1) + e.jitter(e.cfg.MaxJitter)
			log.Printf("%s: rate limited (attempt %d/%d), backing off %v", op, attempt, e.cfg.MaxAttempts, delay)
			if err := e.sleep(ctx, delay); err != nil {
				return err
			}

		case aggregator.IsTransient(err):
			transientTries++
			if transientTries >= e.cfg.TransientAttempts {
				return fmt.Errorf("%s: %w", op, err)
			}
			delay := e.cfg.TransientDelay * time.Duration(transientTries)
			log.Printf("%s: transient error (%v), retrying in %v", op, err, delay)
			if err := e.sleep(ctx, delay); err != nil {
				return err
			}

		default:
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	return fmt.Errorf("%s: %w", op, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
