package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RedisClient interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
}

// RedisLimiter is a fixed-window counter per tenant slug shared by every
// gateway replica. The window allows RequestsPerSecond*window requests but
// never fewer than burst.
type RedisLimiter struct {
	redis     RedisClient
	keyPrefix string
	window    time.Duration
	limit     int64
	logger    *zap.Logger
}

// NewRedisLimiter creates a limiter keyed under keyPrefix.
func NewRedisLimiter(rdb RedisClient, keyPrefix string, rps float64, burst int, window time.Duration, logger *zap.Logger) *RedisLimiter {
	if window <= 0 {
		window = time.Minute
	}
	limit := int64(math.Floor(rps * window.Seconds()))
	if limit < int64(burst) {
		limit = int64(burst)
	}
	if limit < 1 {
		limit = 1
	}
	return &RedisLimiter{
		redis:     rdb,
		keyPrefix: keyPrefix,
		window:    window,
		limit:     limit,
		logger:    logger,
	}
}

func (l *RedisLimiter) buildKey(slug string) string {
	return fmt.Sprintf("%s:ratelimit:%s", l.keyPrefix, slug)
}

// Limit returns the number of requests allowed per window.
func (l *RedisLimiter) Limit() int64 {
	return l.limit
}

// Allow counts one request for slug. Redis failures let the request through.
func (l *RedisLimiter) Allow(ctx context.Context, slug string) (allowed bool, remaining int, retryAfter time.Duration) {
	key := l.buildKey(slug)

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		l.logger.Warn("rate limit counter unavailable, allowing request",
			zap.String("client_slug", slug),
			zap.Error(err),
		)
		return true, -1, 0
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			l.logger.Warn("failed to set expire on rate limit key", zap.String("client_slug", slug), zap.Error(err))
		}
	}

	if count <= l.limit {
		return true, int(l.limit - count), 0
	}

	ttl, err := l.redis.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		// A counter without expiry would block the tenant forever.
		if ttl == -1 {
			_ = l.redis.Expire(ctx, key, l.window).Err()
		}
		ttl = l.window
	}
	return false, 0, ttl
}
