package ratelimit

import (
	"context"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisLimiter counts with INCR and reads the window with PTTL in one
// pipeline. A counter without an expiry is the first hit of a window and
// gets PEXPIRE. Any Redis error routes the call to the memory fallback.
type RedisLimiter struct {
	client   *redis.Client
	prefix   string
	fallback *MemoryLimiter
}

func NewRedisLimiter(client *redis.Client, prefix string, fallback *MemoryLimiter) *RedisLimiter {
	if fallback == nil {
		fallback = NewMemoryLimiter()
	}
	return &RedisLimiter{client: client, prefix: prefix, fallback: fallback}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, win time.Duration) (Result, error) {
	if l.client == nil {
		return l.fallback.Allow(ctx, key, limit, win)
	}

	fullKey := l.prefix + key
	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, fullKey)
	pttl := pipe.PTTL(ctx, fullKey)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[RATELIMIT] Redis unavailable, using memory counter for %s: %v", key, err)
		return l.fallback.Allow(ctx, key, limit, win)
	}

	count := incr.Val()
	ttl := pttl.Val()
	if ttl < 0 {
		// New window, or a counter that lost its expiry and would block forever.
		if err := l.client.PExpire(ctx, fullKey, win).Err(); err != nil {
			log.Printf("[RATELIMIT] Failed to set window on %s: %v", key, err)
		}
		ttl = win
	}

	res := Result{Allowed: count <= int64(limit), Count: int(count), Limit: limit}
	if !res.Allowed {
		res.RetryAfter = ttl
	}
	return res, nil
}

func (l *RedisLimiter) Close() error {
	if l.client == nil {
		return nil
	}
	return l.client.Close()
}
