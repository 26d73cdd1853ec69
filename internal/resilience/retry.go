package resilience

import (
	"context"
	"time"

	agenterrors "github.com/blueberrycongee/murmur/pkg/errors"
)

// RetryConfig controls exponential backoff for retryable failures.
type RetryConfig struct {
	// Attempts is the total number of tries, including the first one.
	Attempts int
	// Backoff is the delay before the first retry; it doubles on every further retry.
	Backoff time.Duration
	// MaxBackoff caps the delay between attempts. Zero means uncapped.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:   3,
		Backoff:    200 * time.Millisecond,
		MaxBackoff: 5 * time.Second,
	}
}

// Retry runs fn until it succeeds, returns a non-retryable error, or the attempts are used up.
// Only errors classified as retryable by pkg/errors are retried.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.Attempts; attempt++ {
		if attempt > 0 {
			backoff := cfg.Backoff * time.Duration(1<<(attempt-1))
			if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return lastErr
			case <-timer.C:
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !agenterrors.IsRetryable(err) {
			return err
		}
	}

	return lastErr
}
