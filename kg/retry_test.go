package kg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestRetrySucceedsAfterTransient(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(), "op", func() error {
		calls++
		if calls < 3 {
			return NewTransient("flaky", errors.New("refused"))
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnPermanent(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(), "op", func() error {
		calls++
		return NewValidation("name", "bad")
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestRetryTimeoutOnlyOnce(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(), "op", func() error {
		calls++
		return NewTimeout("deadline", nil)
	})
	assert.Equal(t, 2, calls)
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(), "op", func() error {
		calls++
		return NewTransient("still down", nil)
	})
	assert.Equal(t, 3, calls)
	assert.Error(t, err)
	assert.Equal(t, KindTransientIO, KindOf(err))
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Retry(ctx, fastRetryConfig(), "op", func() error {
		calls++
		return nil
	})
	assert.Equal(t, 0, calls)
	assert.Equal(t, KindTimeout, KindOf(err))
}
