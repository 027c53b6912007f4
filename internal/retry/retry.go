// Package retry runs an operation under a bounded attempt budget with a
// configurable delay schedule.
package retry

import (
	"context"
	"errors"
	"time"
)

// Backoff returns the delay before the next attempt. attempt starts at 1 for
// the wait after the first failure.
type Backoff func(attempt int) time.Duration

// Policy bounds how an operation is retried.
type Policy struct {
	MaxAttempts int
	Backoff     Backoff
	// Retryable decides whether err is worth another attempt. Nil retries
	// every error.
	Retryable func(err error) bool
}

// Linear waits step × attempt between attempts.
func Linear(step time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return step * time.Duration(attempt)
	}
}

// Exponential doubles initial after each attempt, capped at max when max > 0.
func Exponential(initial, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		d := initial
		for i := 1; i < attempt; i++ {
			d *= 2
			if max > 0 && d >= max {
				return max
			}
		}
		if max > 0 && d > max {
			return max
		}
		return d
	}
}

var ErrInvalidPolicy = errors.New("retry: max attempts must be positive")

// Do calls fn until it succeeds, returns a non-retryable error, exhausts
// MaxAttempts or ctx is done. The last error from fn is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		return ErrInvalidPolicy
	}

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		var delay time.Duration
		if p.Backoff != nil {
			delay = p.Backoff(attempt)
		}
		if delay <= 0 {
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}
