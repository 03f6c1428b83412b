package config

import "time"

type EscrowConfig struct {
	OverpaymentTolerance int64
	SweepInterval        time.Duration
	Currency             string
	KafkaBrokers         []string
	KafkaTopicPrefix     string
}

func LoadEscrowConfig() *EscrowConfig {
	return &EscrowConfig{
		OverpaymentTolerance: getEnvAsInt64("ESCROW_OVERPAYMENT_TOLERANCE", 0),
		SweepInterval:        getEnvAsDuration("ESCROW_SWEEP_INTERVAL", 5*time.Minute),
		Currency:             getEnv("ESCROW_CURRENCY", "NGN"),
		KafkaBrokers:         getEnvAsList("KAFKA_BROKERS"),
		KafkaTopicPrefix:     getEnv("KAFKA_TOPIC_PREFIX", "coopa"),
	}
}
