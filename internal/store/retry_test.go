package store

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestRetryPolicy_SucceedsFirstTry(t *testing.T) {
	calls := 0
	policy := RetryPolicy{MaxAttempts: 3}

	err := policy.Do(context.Background(), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryPolicy_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	policy := RetryPolicy{MaxAttempts: 3, Backoff: func(int) time.Duration { return 0 }}

	err := policy.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("transient failure %d", calls)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryPolicy_ExhaustsAttempts(t *testing.T) {
	calls := 0
	policy := RetryPolicy{MaxAttempts: 3, Backoff: func(int) time.Duration { return 0 }}

	err := policy.Do(context.Background(), func() error {
		calls++
		return fmt.Errorf("always fails")
	})
	if err == nil {
		t.Fatal("expected final failure to surface")
	}
	if calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", calls)
	}
}

func TestRetryPolicy_ContextCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	policy := RetryPolicy{MaxAttempts: 5, Backoff: LinearBackoff(time.Hour)}

	// Cancel from inside the first attempt so Do never sits out the
	// one-hour backoff.
	err := policy.Do(ctx, func() error {
		calls++
		cancel()
		return fmt.Errorf("fail")
	})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if calls != 1 {
		t.Errorf("expected 1 attempt before cancellation, got %d", calls)
	}
}

func TestLinearBackoff(t *testing.T) {
	backoff := LinearBackoff(100 * time.Millisecond)
	if got := backoff(1); got != 100*time.Millisecond {
		t.Errorf("attempt 1: expected 100ms, got %v", got)
	}
	if got := backoff(3); got != 300*time.Millisecond {
		t.Errorf("attempt 3: expected 300ms, got %v", got)
	}
}
