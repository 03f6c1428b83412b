// Package ratelimit counts calls per key in fixed windows. The Redis
// limiter is shared across instances; the memory limiter serves as its
// fallback and as a standalone limiter for single-process deployments.
package ratelimit

import (
	"context"
	"time"

	"github.com/coopa/backend/internal/config"
)

// Result describes one counted call.
type Result struct {
	Allowed    bool
	Count      int
	Limit      int
	RetryAfter time.Duration
}

type Limiter interface {
	// Allow counts one call against key. A limit of N admits N calls per
	// window and rejects the (N+1)-th.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// Key builds the counter key for a policy and caller.
func Key(policy config.RateLimitPolicy, userID string) string {
	return policy.Prefix + ":" + userID
}

// Check applies policy to userID.
func Check(ctx context.Context, l Limiter, policy config.RateLimitPolicy, userID string) (Result, error) {
	return l.Allow(ctx, Key(policy, userID), policy.Limit, policy.Window)
}
