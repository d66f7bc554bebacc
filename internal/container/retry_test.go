// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryWithBackoff_SucceedsFirstAttempt(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryWithBackoff(context.Background(), 3, time.Millisecond, func(int) (bool, error) {
		calls++
		return false, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryWithBackoff_RetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryWithBackoff(context.Background(), 5, time.Millisecond, func(int) (bool, error) {
		calls++
		if calls < 3 {
			return true, errors.New("transient")
		}
		return false, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryWithBackoff_PermanentFailureStopsImmediately(t *testing.T) {
	t.Parallel()

	permanent := errors.New("permanent")
	calls := 0
	err := RetryWithBackoff(context.Background(), 5, time.Millisecond, func(int) (bool, error) {
		calls++
		return false, permanent
	})
	if !errors.Is(err, permanent) {
		t.Errorf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryWithBackoff_ExhaustionReturnsLastError(t *testing.T) {
	t.Parallel()

	last := errors.New("still failing")
	err := RetryWithBackoff(context.Background(), 3, time.Millisecond, func(int) (bool, error) {
		return true, last
	})
	if !errors.Is(err, last) {
		t.Errorf("expected last error after exhaustion, got %v", err)
	}
}

func TestRetryWithBackoff_RespectsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryWithBackoff(ctx, 10, time.Millisecond, func(int) (bool, error) {
		calls++
		cancel()
		return true, errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 before cancellation took effect", calls)
	}
}
