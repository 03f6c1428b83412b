package config

import "time"

type ConflictStrategy string

const (
	ServerWins ConflictStrategy = "server-wins"
	Merge      ConflictStrategy = "merge"
	UserChoice ConflictStrategy = "user-choice"
)

type SyncConfig struct {
	StorePath     string
	BaseURL       string
	Token         string
	MaxRetries    int
	RetryDelays   []time.Duration
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	Strategy      ConflictStrategy
}

func LoadSyncConfig() *SyncConfig {
	return &SyncConfig{
		StorePath:     getEnv("SYNC_STORE_PATH", "~/.coopa/offline.db"),
		BaseURL:       getEnv("SYNC_BASE_URL", "http://localhost:8080/api/v1"),
		Token:         getEnv("SYNC_TOKEN", ""),
		MaxRetries:    getEnvAsInt("SYNC_MAX_RETRIES", 3),
		RetryDelays:   getEnvAsDurations("SYNC_RETRY_DELAYS", []time.Duration{time.Second, 5 * time.Second, 15 * time.Second}),
		CheckInterval: getEnvAsDuration("SYNC_CHECK_INTERVAL", 10*time.Second),
		ProbeTimeout:  getEnvAsDuration("SYNC_PROBE_TIMEOUT", 5*time.Second),
		Strategy:      ConflictStrategy(getEnv("SYNC_CONFLICT_STRATEGY", string(ServerWins))),
	}
}
