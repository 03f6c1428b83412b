package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadRateLimitConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := LoadRateLimitConfig()
		assert.Equal(t, 20, cfg.Requests.Limit)
		assert.Equal(t, time.Minute, cfg.Requests.Window)
		assert.Equal(t, 5, cfg.CoopRegister.Limit)
		assert.Equal(t, 10*time.Minute, cfg.CoopRegister.Window)
	})

	t.Run("env override", func(t *testing.T) {
		t.Setenv("RATE_LIMIT_REQUESTS", "3")
		t.Setenv("RATE_LIMIT_REQUESTS_WINDOW", "30s")
		cfg := LoadRateLimitConfig()
		assert.Equal(t, 3, cfg.Requests.Limit)
		assert.Equal(t, 30*time.Second, cfg.Requests.Window)
	})
}

func TestLoadSyncConfig(t *testing.T) {
	t.Run("default delays", func(t *testing.T) {
		cfg := LoadSyncConfig()
		assert.Equal(t, []time.Duration{time.Second, 5 * time.Second, 15 * time.Second}, cfg.RetryDelays)
		assert.Equal(t, ServerWins, cfg.Strategy)
	})

	t.Run("invalid delay list falls back", func(t *testing.T) {
		t.Setenv("SYNC_RETRY_DELAYS", "1s,bogus")
		cfg := LoadSyncConfig()
		assert.Len(t, cfg.RetryDelays, 3)
	})

	t.Run("custom delay list", func(t *testing.T) {
		t.Setenv("SYNC_RETRY_DELAYS", "2s, 4s")
		cfg := LoadSyncConfig()
		assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, cfg.RetryDelays)
	})
}

func TestLoadEscrowConfig(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	cfg := LoadEscrowConfig()
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, int64(0), cfg.OverpaymentTolerance)
}
