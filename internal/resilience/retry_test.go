package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	agenterrors "github.com/blueberrycongee/murmur/pkg/errors"
)

func TestRetry_SucceedsAfterRetryableFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{Attempts: 3, Backoff: time.Millisecond}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return agenterrors.NewStorageError("insert", "pool exhausted", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{Attempts: 5, Backoff: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return agenterrors.NewDataError("insert", "dimension mismatch")
	})
	if !agenterrors.IsKind(err, agenterrors.KindData) {
		t.Fatalf("expected data error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetry_PlainErrorsAreNotRetried(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := Retry(context.Background(), RetryConfig{Attempts: 3}, func(ctx context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Retry() error = %v, want %v", err, boom)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{Attempts: 3, Backoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}, func(ctx context.Context) error {
		calls++
		return agenterrors.NewStorageError("query", "timeout", nil)
	})
	if !agenterrors.IsKind(err, agenterrors.KindStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, RetryConfig{Attempts: 3, Backoff: time.Hour}, func(ctx context.Context) error {
		calls++
		cancel()
		return agenterrors.NewStorageError("query", "timeout", nil)
	})
	if err == nil {
		t.Fatal("expected the last error to be returned")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
