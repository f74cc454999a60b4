package secure

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yagokoro-dev/yagokoro/kg"
)

func TestMemoryLimiter(t *testing.T) {
	ctx := context.Background()
	current := time.Now()

	l := NewMemoryLimiter(LimitConfig{MaxRequests: 3, Window: time.Minute, SkipKeys: []string{"internal"}})
	l.now = func() time.Time { return current }

	t.Run("consume up to the limit", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			require.NoError(t, l.Consume(ctx, "key-a"))
		}
		err := l.Consume(ctx, "key-a")
		require.Error(t, err)
		assert.Equal(t, kg.KindRateLimited, kg.KindOf(err))

		var appErr *kg.Error
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, time.Minute, appErr.RetryAfter)
	})

	t.Run("check does not consume", func(t *testing.T) {
		remaining, err := l.Check(ctx, "key-b")
		require.NoError(t, err)
		assert.Equal(t, 3, remaining)

		remaining, err = l.Check(ctx, "key-b")
		require.NoError(t, err)
		assert.Equal(t, 3, remaining)
	})

	t.Run("window slides", func(t *testing.T) {
		current = current.Add(61 * time.Second)
		require.NoError(t, l.Consume(ctx, "key-a"))
	})

	t.Run("skip keys bypass", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			require.NoError(t, l.Consume(ctx, "internal"))
		}
	})

	t.Run("keys are independent", func(t *testing.T) {
		require.NoError(t, l.Consume(ctx, "key-c"))
		remaining, err := l.Check(ctx, "key-d")
		require.NoError(t, err)
		assert.Equal(t, 3, remaining)
	})
}

func TestRedisLimiter(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	l := NewRedisLimiter(client, LimitConfig{MaxRequests: 2, Window: time.Minute, SkipKeys: []string{"internal"}})

	t.Run("consume up to the limit", func(t *testing.T) {
		require.NoError(t, l.Consume(ctx, "key-a"))
		require.NoError(t, l.Consume(ctx, "key-a"))

		err := l.Consume(ctx, "key-a")
		require.Error(t, err)
		assert.Equal(t, kg.KindRateLimited, kg.KindOf(err))

		var appErr *kg.Error
		require.True(t, errors.As(err, &appErr))
		assert.Greater(t, appErr.RetryAfter, time.Duration(0))
	})

	t.Run("check reports remaining", func(t *testing.T) {
		remaining, err := l.Check(ctx, "key-b")
		require.NoError(t, err)
		assert.Equal(t, 2, remaining)

		require.NoError(t, l.Consume(ctx, "key-b"))
		remaining, err = l.Check(ctx, "key-b")
		require.NoError(t, err)
		assert.Equal(t, 1, remaining)
	})

	t.Run("window slides", func(t *testing.T) {
		srv.FastForward(61 * time.Second)
		l.now = func() time.Time { return time.Now().Add(61 * time.Second) }
		require.NoError(t, l.Consume(ctx, "key-a"))
	})

	t.Run("skip keys bypass", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			require.NoError(t, l.Consume(ctx, "internal"))
		}
	})

	t.Run("connection failure is transient", func(t *testing.T) {
		srv.Close()
		err := l.Consume(ctx, "key-z")
		assert.Equal(t, kg.KindTransientIO, kg.KindOf(err))
		assert.True(t, kg.IsRetryable(err))
	})
}

func TestLimitPresets(t *testing.T) {
	assert.Equal(t, 100, PresetStandard.MaxRequests)
	assert.Equal(t, time.Minute, PresetStandard.Window)
	assert.Less(t, PresetStrict.MaxRequests, PresetStandard.MaxRequests)
	assert.Greater(t, PresetRelaxed.MaxRequests, PresetStandard.MaxRequests)
	assert.Equal(t, time.Hour, PresetHourly.Window)
	assert.Equal(t, 24*time.Hour, PresetDaily.Window)
}
