package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coopa/backend/internal/config"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestMemoryLimiter_Allow(t *testing.T) {
	ctx := context.Background()

	t.Run("limit of N rejects call N+1", func(t *testing.T) {
		clock := &fakeClock{t: time.Unix(1700000000, 0)}
		l := NewMemoryLimiterWithClock(clock.Now)

		for i := 1; i <= 20; i++ {
			res, err := l.Allow(ctx, "requests:u1", 20, time.Minute)
			require.NoError(t, err)
			assert.True(t, res.Allowed, "call %d", i)
		}

		res, err := l.Allow(ctx, "requests:u1", 20, time.Minute)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, 21, res.Count)
		assert.Equal(t, time.Minute, res.RetryAfter)
	})

	t.Run("counter resets after window", func(t *testing.T) {
		clock := &fakeClock{t: time.Unix(1700000000, 0)}
		l := NewMemoryLimiterWithClock(clock.Now)

		for i := 0; i < 6; i++ {
			l.Allow(ctx, "coop-register:u1", 5, 10*time.Minute)
		}
		res, _ := l.Allow(ctx, "coop-register:u1", 5, 10*time.Minute)
		assert.False(t, res.Allowed)

		clock.Advance(10 * time.Minute)
		res, _ = l.Allow(ctx, "coop-register:u1", 5, 10*time.Minute)
		assert.True(t, res.Allowed)
		assert.Equal(t, 1, res.Count)
	})

	t.Run("keys are independent", func(t *testing.T) {
		l := NewMemoryLimiter()
		res, _ := l.Allow(ctx, "a", 1, time.Minute)
		assert.True(t, res.Allowed)
		res, _ = l.Allow(ctx, "b", 1, time.Minute)
		assert.True(t, res.Allowed)
		res, _ = l.Allow(ctx, "a", 1, time.Minute)
		assert.False(t, res.Allowed)
	})

	t.Run("expired counters are swept", func(t *testing.T) {
		clock := &fakeClock{t: time.Unix(1700000000, 0)}
		l := NewMemoryLimiterWithClock(clock.Now)
		l.Allow(ctx, "old", 5, time.Second)
		clock.Advance(2 * time.Minute)
		l.Allow(ctx, "new", 5, time.Minute)
		assert.Equal(t, 1, l.Len())
	})
}

func TestRedisLimiter_Allow(t *testing.T) {
	ctx := context.Background()

	t.Run("first hit starts the window", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		l := NewRedisLimiter(client, "rl:", nil)

		mock.ExpectIncr("rl:requests:u1").SetVal(1)
		mock.ExpectPTTL("rl:requests:u1").SetVal(-1)
		mock.ExpectPExpire("rl:requests:u1", time.Minute).SetVal(true)

		res, err := l.Allow(ctx, "requests:u1", 20, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("later hits inside the window skip the expiry", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		l := NewRedisLimiter(client, "rl:", nil)

		mock.ExpectIncr("rl:requests:u1").SetVal(5)
		mock.ExpectPTTL("rl:requests:u1").SetVal(30 * time.Second)

		res, err := l.Allow(ctx, "requests:u1", 20, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 5, res.Count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("over the limit reports retry after", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		l := NewRedisLimiter(client, "rl:", nil)

		mock.ExpectIncr("rl:requests:u1").SetVal(21)
		mock.ExpectPTTL("rl:requests:u1").SetVal(42 * time.Second)

		res, err := l.Allow(ctx, "requests:u1", 20, time.Minute)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, 42*time.Second, res.RetryAfter)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis failure falls back to memory", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		fallback := NewMemoryLimiter()
		l := NewRedisLimiter(client, "rl:", fallback)

		mock.ExpectIncr("rl:coop-register:u1").SetErr(errors.New("connection refused"))

		res, err := l.Allow(ctx, "coop-register:u1", 5, 10*time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 1, fallback.Len())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nil client uses memory", func(t *testing.T) {
		l := NewRedisLimiter(nil, "rl:", nil)
		res, err := l.Allow(ctx, "k", 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.NoError(t, l.Close())
	})
}

func TestCheck(t *testing.T) {
	l := NewMemoryLimiter()
	policy := config.RateLimitPolicy{Prefix: "requests", Limit: 1, Window: time.Minute}

	assert.Equal(t, "requests:u1", Key(policy, "u1"))
	res, _ := Check(context.Background(), l, policy, "u1")
	assert.True(t, res.Allowed)
	res, _ = Check(context.Background(), l, policy, "u1")
	assert.False(t, res.Allowed)
}
