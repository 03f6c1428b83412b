package config

import "time"

type MoniepointConfig struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	Timeout       time.Duration
}

func LoadMoniepointConfig() *MoniepointConfig {
	return &MoniepointConfig{
		BaseURL:       getEnv("MONIEPOINT_BASE_URL", "https://api.moniepoint.com/api/v1"),
		APIKey:        getEnv("MONIEPOINT_API_KEY", ""),
		WebhookSecret: getEnv("MONIEPOINT_WEBHOOK_SECRET", ""),
		Timeout:       getEnvAsDuration("MONIEPOINT_TIMEOUT", 30*time.Second),
	}
}
