package app

import (
	"time"

	"github.com/uplinehq/upline-backend/internal/logger"
	"github.com/uplinehq/upline-backend/internal/utils"
)

type Config struct {
	ServiceName string
	Environment string
	Version     string

	WorkerPoolSize int
	ClaimInterval  time.Duration
	MaxAttempts    int
	RetryDelay     time.Duration
	StaleRunning   time.Duration

	LevelTimeout time.Duration
	LevelRetries int

	ReconcileInterval  time.Duration
	ReconcileBatchSize int

	CacheTTL time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		ServiceName: utils.GetEnv("SERVICE_NAME", "upline-backend", log),
		Environment: utils.GetEnv("ENVIRONMENT", "development", log),
		Version:     utils.GetEnv("SERVICE_VERSION", "dev", log),

		WorkerPoolSize: utils.GetEnvAsInt("WORKER_POOL_SIZE", 4, log),
		ClaimInterval:  utils.GetEnvAsDuration("WORKER_CLAIM_INTERVAL", time.Second, log),
		MaxAttempts:    utils.GetEnvAsInt("EVENT_MAX_ATTEMPTS", 5, log),
		RetryDelay:     utils.GetEnvAsDuration("EVENT_RETRY_DELAY", 30*time.Second, log),
		StaleRunning:   utils.GetEnvAsDuration("EVENT_STALE_RUNNING", 2*time.Minute, log),

		LevelTimeout: utils.GetEnvAsDuration("REWARD_LEVEL_TIMEOUT", 5*time.Second, log),
		LevelRetries: utils.GetEnvAsInt("REWARD_LEVEL_RETRIES", 2, log),

		ReconcileInterval:  utils.GetEnvAsDuration("RECONCILE_INTERVAL", 0, log),
		ReconcileBatchSize: utils.GetEnvAsInt("RECONCILE_BATCH_SIZE", 500, log),

		CacheTTL: utils.GetEnvAsDuration("CACHE_TTL", 30*time.Second, log),
	}
}
