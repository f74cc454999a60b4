package secure

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/yagokoro-dev/yagokoro/kg"
)

// RedisLimiter is a sliding-window Limiter shared across processes, backed
// by one sorted set per key with request timestamps as scores.
type RedisLimiter struct {
	client redis.UniversalClient
	cfg    LimitConfig
	prefix string
	now    func() time.Time
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter creates a limiter over the given client. Keys are stored
// under "ratelimit:<key>".
func NewRedisLimiter(client redis.UniversalClient, cfg LimitConfig) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		cfg:    cfg,
		prefix: "ratelimit:",
		now:    time.Now,
	}
}

// Consume implements Limiter.
func (l *RedisLimiter) Consume(ctx context.Context, key string) error {
	if l.cfg.skips(key) {
		return nil
	}

	k := l.prefix + key
	now := l.now()
	cutoff := now.Add(-l.cfg.Window).UnixNano()

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "0", strconv.FormatInt(cutoff, 10))
	cardCmd := pipe.ZCard(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return kg.NewTransient("rate limiter", err)
	}

	if int(cardCmd.Val()) >= l.cfg.MaxRequests {
		return kg.NewRateLimited("rate limit exceeded", l.retryAfter(ctx, k, now))
	}

	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()
	add := l.client.TxPipeline()
	add.ZAdd(ctx, k, redis.Z{Score: float64(now.UnixNano()), Member: member})
	add.Expire(ctx, k, l.cfg.Window)
	if _, err := add.Exec(ctx); err != nil {
		return kg.NewTransient("rate limiter", err)
	}
	return nil
}

// Check implements Limiter.
func (l *RedisLimiter) Check(ctx context.Context, key string) (int, error) {
	if l.cfg.skips(key) {
		return l.cfg.MaxRequests, nil
	}

	k := l.prefix + key
	cutoff := l.now().Add(-l.cfg.Window).UnixNano()

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "0", strconv.FormatInt(cutoff, 10))
	cardCmd := pipe.ZCard(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, kg.NewTransient("rate limiter", err)
	}

	remaining := l.cfg.MaxRequests - int(cardCmd.Val())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// retryAfter computes when the oldest surviving request leaves the window.
func (l *RedisLimiter) retryAfter(ctx context.Context, k string, now time.Time) time.Duration {
	oldest, err := l.client.ZRangeWithScores(ctx, k, 0, 0).Result()
	if err != nil || len(oldest) == 0 {
		return l.cfg.Window
	}
	at := time.Unix(0, int64(oldest[0].Score))
	retryAfter := at.Add(l.cfg.Window).Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return retryAfter
}
