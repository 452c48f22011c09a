package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient")

func retryTransient(err error) bool { return errors.Is(err, errTransient) }

func TestDo_FailTwiceThenSucceed(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := Do(context.Background(), Config{
		MaxRetries:  2,
		BaseDelay:   5 * time.Millisecond,
		ShouldRetry: retryTransient,
	}, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errTransient
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("unexpected attempts: %d", attempts)
	}
}

func TestDo_ExhaustedReturnsLastErrorWithScaledBackoff(t *testing.T) {
	t.Parallel()

	base := 50 * time.Millisecond
	attempts := 0
	var lastErr error

	start := time.Now()
	err := Do(context.Background(), Config{
		MaxRetries:  2,
		BaseDelay:   base,
		ShouldRetry: retryTransient,
	}, func(ctx context.Context) error {
		attempts++
		lastErr = errors.Join(errTransient, errors.New("attempt"))
		return lastErr
	})
	elapsed := time.Since(start)

	if attempts != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", attempts)
	}
	if !errors.Is(err, lastErr) {
		t.Fatalf("expected last error, got %v", err)
	}
	// waits are base then 2*base
	if elapsed < 3*base {
		t.Fatalf("backoff too short: %v", elapsed)
	}
	if elapsed > 10*base {
		t.Fatalf("backoff too long: %v", elapsed)
	}
}

func TestDo_NonRetryablePropagatesImmediately(t *testing.T) {
	t.Parallel()

	terminal := errors.New("terminal")
	attempts := 0
	start := time.Now()
	err := Do(context.Background(), Config{
		MaxRetries:  2,
		BaseDelay:   200 * time.Millisecond,
		ShouldRetry: retryTransient,
	}, func(ctx context.Context) error {
		attempts++
		return terminal
	})
	if !errors.Is(err, terminal) {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatalf("no backoff expected for non-retryable errors")
	}
}

func TestDo_CancelDuringBackoffAbortsSleep(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	start := time.Now()
	err := Do(ctx, Config{
		MaxRetries:  2,
		BaseDelay:   time.Second,
		ShouldRetry: retryTransient,
	}, func(ctx context.Context) error {
		attempts++
		time.AfterFunc(10*time.Millisecond, cancel)
		return errTransient
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected no further attempt after cancellation, got %d", attempts)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("sleep was not cut short by cancellation")
	}
}

func TestDo_ContextAlreadyCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	attempts := 0
	err := Do(ctx, Config{MaxRetries: 2, BaseDelay: time.Millisecond}, func(ctx context.Context) error {
		attempts++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 0 {
		t.Fatalf("expected zero attempts, got %d", attempts)
	}
}

func TestDo_DefaultClassifierSkipsContextErrors(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := Do(context.Background(), Config{MaxRetries: 3, BaseDelay: time.Millisecond}, func(ctx context.Context) error {
		attempts++
		return context.DeadlineExceeded
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("deadline errors must not be retried, got %d attempts", attempts)
	}
}
