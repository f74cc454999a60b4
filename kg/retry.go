package kg

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryConfig configures the shared retry helper.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig matches the engine-wide policy: at most 3 attempts for
// transient failures with exponential backoff capped at 5s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// Retry runs fn until it succeeds, the error stops being retryable, or the
// attempt budget is exhausted. Rate-limited errors wait the server-indicated
// delay; timeouts are retried at most once; validation, not-found,
// permission and conflict errors surface immediately. Context cancellation
// always wins.
func Retry(ctx context.Context, cfg RetryConfig, op string, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultRetryConfig()
	}

	var lastErr error
	delay := cfg.InitialDelay
	timeoutRetried := false

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return NewTimeout(fmt.Sprintf("%s cancelled", op), ctx.Err())
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
		if IsKind(err, KindTimeout) {
			if timeoutRetried || ctx.Err() != nil {
				return err
			}
			timeoutRetried = true
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		wait := delay
		var e *Error
		if errors.As(err, &e) && e.Kind == KindRateLimited && e.RetryAfter > 0 {
			wait = e.RetryAfter
		}

		select {
		case <-time.After(wait):
			delay = time.Duration(float64(delay) * cfg.BackoffFactor)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		case <-ctx.Done():
			return NewTimeout(fmt.Sprintf("%s cancelled during backoff", op), ctx.Err())
		}
	}

	return Wrap(lastErr, fmt.Sprintf("%s: retries exhausted (%d)", op, cfg.MaxAttempts))
}
