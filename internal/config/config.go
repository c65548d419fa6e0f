package config

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Env string `envconfig:"ENV" default:"development"`

	// PostgreSQL
	PostgresHost     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	PostgresPort     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	PostgresDB       string `envconfig:"POSTGRES_DB" default:"slots"`
	PostgresUser     string `envconfig:"POSTGRES_USER" default:"postgres"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD" default:""`

	// Redis
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`

	// Kafka
	KafkaBrokers    string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	ConsumerGroupID string `envconfig:"CONSUMER_GROUP_ID" default:"slot-svc"`

	// Tracing
	JaegerEndpoint string `envconfig:"JAEGER_ENDPOINT" default:"localhost:4318"`

	// Outbox dispatcher (immediate path)
	DispatcherWorkers   int `envconfig:"DISPATCHER_WORKERS" default:"4"`
	DispatcherQueueSize int `envconfig:"DISPATCHER_QUEUE_SIZE" default:"256"`
	DispatchTimeoutMS   int `envconfig:"DISPATCH_TIMEOUT_MS" default:"1000"`

	// Outbox sweeper (scheduled path)
	SweepIntervalSec       int `envconfig:"SWEEP_INTERVAL_SEC" default:"5"`
	SweepTimeoutMS         int `envconfig:"SWEEP_TIMEOUT_MS" default:"2000"`
	SweepBatchSize         int `envconfig:"SWEEP_BATCH_SIZE" default:"50"`
	OutboxMaxRetries       int `envconfig:"OUTBOX_MAX_RETRIES" default:"3"`
	MarkFailedIntervalSec  int `envconfig:"MARK_FAILED_INTERVAL_SEC" default:"60"`
	CleanupIntervalHours   int `envconfig:"CLEANUP_INTERVAL_HOURS" default:"6"`
	PublishedRetentionDays int `envconfig:"PUBLISHED_RETENTION_DAYS" default:"7"`

	// Rolling window & recovery
	HorizonDays             int `envconfig:"HORIZON_DAYS" default:"60"`
	RetentionDays           int `envconfig:"RETENTION_DAYS" default:"1"`
	PendingTTLMinutes       int `envconfig:"PENDING_TTL_MINUTES" default:"15"`
	RecoveryIntervalMinutes int `envconfig:"RECOVERY_INTERVAL_MINUTES" default:"5"`
	WindowIntervalHours     int `envconfig:"WINDOW_INTERVAL_HOURS" default:"24"`

	// Distributed task lock
	LockMaxHoldMinutes int `envconfig:"LOCK_MAX_HOLD_MINUTES" default:"10"`
	LockMinIntervalSec int `envconfig:"LOCK_MIN_INTERVAL_SEC" default:"30"`

	// Place info
	FallbackSlotUnit string `envconfig:"FALLBACK_SLOT_UNIT" default:"HOUR"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
