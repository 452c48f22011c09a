// Package retry wraps a fallible operation with bounded retries and a
// cancellable linear backoff. It keeps no state between calls, so its
// behavior is a pure function of (operation result, classifier, attempt).
package retry

import (
	"context"
	"errors"
	"time"
)

type Config struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BaseDelay is scaled by the attempt number: D, 2D, 3D...
	BaseDelay time.Duration
	// ShouldRetry classifies the error of a failed attempt. A nil
	// classifier retries everything except context errors.
	ShouldRetry func(error) bool
}

// Do runs op until it succeeds, exhausts MaxRetries, fails with a
// non-retryable error, or ctx is cancelled. The backoff sleep races the
// timer against ctx.Done(); a cancellation during the sleep returns
// ctx.Err() without another attempt. The last attempt's error is returned
// after exhaustion.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	attempts := cfg.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts || !shouldRetry(ctx, cfg, lastErr) {
			return lastErr
		}
		if err := sleep(ctx, cfg.BaseDelay*time.Duration(attempt)); err != nil {
			return err
		}
	}
	return lastErr
}

func shouldRetry(ctx context.Context, cfg Config, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if cfg.ShouldRetry == nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return cfg.ShouldRetry(err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
