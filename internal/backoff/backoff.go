// Package backoff implements the retry policy for calls to external
// services. Transient failures (embedding or generation backends being
// unreachable) are retried with capped exponential backoff up to a fixed
// attempt ceiling; everything else fails immediately.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy configures retry behavior.
type Policy struct {
	MaxAttempts     int           // total attempts, including the first
	InitialInterval time.Duration // delay before the second attempt
	MaxInterval     time.Duration // cap for the doubling delay
}

// DefaultPolicy returns sensible defaults for LLM API calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// Retryable marks err as transient so Do will retry it.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return retryableError{err}
}

type retryableError struct{ err error }

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

// IsRetryable reports whether err was marked with Retryable.
func IsRetryable(err error) bool {
	var re retryableError
	return errors.As(err, &re)
}

// Do runs fn until it succeeds, returns a non-retryable error, the
// attempt ceiling is reached, or ctx is done. Context cancellation is
// surfaced as ctx.Err() so callers can distinguish a caller timeout
// from an exhausted retry budget.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.InitialInterval
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	var lastErr error
	start := time.Now()

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			delay = min(delay*2, p.MaxInterval)
		}
	}

	var re retryableError
	if errors.As(lastErr, &re) {
		lastErr = re.err
	}
	return fmt.Errorf("after %d attempts (elapsed %v): %w",
		attempts, time.Since(start).Round(time.Millisecond), lastErr)
}
