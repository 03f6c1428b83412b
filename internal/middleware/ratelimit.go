package middleware

import (
	"log"
	"net/http"
	"strconv"

	"github.com/coopa/backend/internal/config"
	"github.com/coopa/backend/internal/ratelimit"
	"github.com/coopa/backend/internal/services"
)

// RateLimit counts each authenticated call against policy before the body
// is read. Must run after Auth.
func RateLimit(limiter ratelimit.Limiter, policy config.RateLimitPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserID(r.Context())
			if !ok || limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			res, err := ratelimit.Check(r.Context(), limiter, policy, userID)
			if err != nil {
				log.Printf("[RATELIMIT] Check failed for %s: %v", ratelimit.Key(policy, userID), err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			if !res.Allowed {
				services.WriteError(w, &services.AppError{
					Kind:       services.ErrRateLimited,
					Message:    "too many requests, please slow down",
					RetryAfter: res.RetryAfter,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
