// Package store provides the two task persistence layers: a local
// embedded SQLite store and a remote per-user libSQL collection, plus
// the retry policy shared by their network-facing operations.
package store

import (
	"context"
	"fmt"
	"time"
)

// BackoffFunc computes the delay before the given retry attempt.
// Attempt numbering starts at 1 for the first retry.
type BackoffFunc func(attempt int) time.Duration

// LinearBackoff returns a backoff growing as attempt * base.
func LinearBackoff(base time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * base
	}
}

// RetryPolicy bounds and paces retries of transient I/O failures.
// Inject a custom Backoff in tests to avoid real timers.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// Backoff computes the wait before each retry.
	Backoff BackoffFunc
}

// DefaultRetryPolicy matches the remote store contract: 3 attempts with
// linear backoff starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     LinearBackoff(time.Second),
	}
}

// Do runs op, retrying transient failures up to MaxAttempts with the
// configured backoff. The final failure is returned after attempts are
// exhausted. Context cancellation stops retrying immediately.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}

		if attempt == attempts {
			break
		}

		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		if wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}

	return fmt.Errorf("giving up after %d attempts: %w", attempts, lastErr)
}
