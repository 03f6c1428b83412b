package config

import "time"

// RateLimitPolicy caps calls per key prefix within a fixed window.
type RateLimitPolicy struct {
	Prefix string
	Limit  int
	Window time.Duration
}

type RateLimitConfig struct {
	Requests     RateLimitPolicy
	BulkRequests RateLimitPolicy
	CoopRegister RateLimitPolicy
	KeyPrefix    string
}

func LoadRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		Requests: RateLimitPolicy{
			Prefix: "requests",
			Limit:  getEnvAsInt("RATE_LIMIT_REQUESTS", 20),
			Window: getEnvAsDuration("RATE_LIMIT_REQUESTS_WINDOW", time.Minute),
		},
		BulkRequests: RateLimitPolicy{
			Prefix: "bulk-requests",
			Limit:  getEnvAsInt("RATE_LIMIT_BULK_REQUESTS", 20),
			Window: getEnvAsDuration("RATE_LIMIT_BULK_REQUESTS_WINDOW", time.Minute),
		},
		CoopRegister: RateLimitPolicy{
			Prefix: "coop-register",
			Limit:  getEnvAsInt("RATE_LIMIT_COOP_REGISTER", 5),
			Window: getEnvAsDuration("RATE_LIMIT_COOP_REGISTER_WINDOW", 10*time.Minute),
		},
		KeyPrefix: getEnv("RATE_LIMIT_KEY_PREFIX", "coopa:ratelimit:"),
	}
}
