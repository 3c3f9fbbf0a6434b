package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Gobusters/ectologger"
)

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy bounds how many times an operation is attempted and how long to wait in between
type Policy struct {
	MaxAttempts int
	// BaseDelay is multiplied by 2^attempt after each failed attempt
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Sleep     SleepFunc
	Logger    ectologger.Logger
}

// DefaultPolicy makes 3 attempts and waits 2s then 4s between them
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Sleep:       Sleep,
	}
}

// Sleep is the default SleepFunc
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Backoff returns the delay after the given failed attempt (1-based): BaseDelay * 2^attempt
func (p Policy) Backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	delay := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns it immediately, unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// ErrExhausted is wrapped by the error Do returns when every attempt failed
var ErrExhausted = errors.New("retries exhausted")

// Do calls fn until it succeeds, returns a Permanent error, or MaxAttempts is reached. The
// returned error carries the last underlying error's message and wraps it.
func Do[T any](ctx context.Context, policy Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	sleep := policy.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := fn(ctx, attempt)
		if err == nil {
			return result, nil
		}

		var permanent *permanentError
		if errors.As(err, &permanent) {
			return zero, permanent.err
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		delay := policy.Backoff(attempt)
		if policy.Logger != nil {
			policy.Logger.WithContext(ctx).WithError(err).Warnf("Attempt %d/%d failed, retrying in %v", attempt, maxAttempts, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("retry aborted after %d attempts: %w", attempt, lastErr)
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, maxAttempts, lastErr)
}
