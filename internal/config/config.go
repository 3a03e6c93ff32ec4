// Package config loads the environment-variable configuration shared by
// cmd/relayq and cmd/relayq-worker, in the house style of env-var-driven
// config (no viper, no config file) this design is drawn from.
package config

import (
	"time"

	"github.com/relaylabs/relayq/internal/logger"
	"github.com/relaylabs/relayq/internal/metrics"
	"github.com/relaylabs/relayq/internal/utils"
	"github.com/relaylabs/relayq/relayq"
)

// Config is the process-level configuration for a relayq binary: which
// Redis to talk to, which queue to operate on, and how many workers to
// run if the binary processes jobs.
type Config struct {
	RedisURL      string
	RedisAddr     string
	RedisDB       int
	RedisPassword string

	KeyPrefix string
	Queue     string

	Concurrency int

	MetricsAddr string // empty disables the /metrics HTTP server

	LogMode string // "dev" or "prod", passed to logger.New

	LockDuration         time.Duration
	LockRenewTime        time.Duration
	StalledCheckInterval time.Duration
	ClientCloseTimeout   time.Duration
	PollingInterval      time.Duration
}

// QueueOptions builds the relayq.Options this Config describes. Tunables
// left at their zero value fall through to relayq's own defaults.
func (c Config) QueueOptions(log *logger.Logger, collector metrics.Collector) relayq.Options {
	return relayq.Options{
		Addr:     c.RedisAddr,
		URL:      c.RedisURL,
		DB:       c.RedisDB,
		Password: c.RedisPassword,

		KeyPrefix: c.KeyPrefix,

		Logger:  log,
		Metrics: collector,

		LockDuration:         c.LockDuration,
		LockRenewTime:        c.LockRenewTime,
		StalledCheckInterval: c.StalledCheckInterval,
		ClientCloseTimeout:   c.ClientCloseTimeout,
		PollingInterval:      c.PollingInterval,
	}
}

// Load reads Config from the environment. log may be nil during the very
// first bootstrap call before a logger exists.
func Load(log *logger.Logger) Config {
	return Config{
		RedisURL:      utils.GetEnv("REDIS_URL", "", log),
		RedisAddr:     utils.GetEnv("REDIS_ADDR", "localhost:6379", log),
		RedisDB:       utils.GetEnvAsInt("REDIS_DB", 0, log),
		RedisPassword: utils.GetEnv("REDIS_PASSWORD", "", log),

		KeyPrefix: utils.GetEnv("RELAYQ_KEY_PREFIX", "bull", log),
		Queue:     utils.GetEnv("RELAYQ_QUEUE", "default", log),

		Concurrency: utils.GetEnvAsInt("RELAYQ_CONCURRENCY", 4, log),

		MetricsAddr: utils.GetEnv("RELAYQ_METRICS_ADDR", "", log),

		LogMode: utils.GetEnv("RELAYQ_LOG_MODE", "dev", log),

		LockDuration:         utils.GetEnvAsDuration("RELAYQ_LOCK_DURATION", 0, log),
		LockRenewTime:        utils.GetEnvAsDuration("RELAYQ_LOCK_RENEW_TIME", 0, log),
		StalledCheckInterval: utils.GetEnvAsDuration("RELAYQ_STALLED_CHECK_INTERVAL", 0, log),
		ClientCloseTimeout:   utils.GetEnvAsDuration("RELAYQ_CLIENT_CLOSE_TIMEOUT", 0, log),
		PollingInterval:      utils.GetEnvAsDuration("RELAYQ_POLLING_INTERVAL", 0, log),
	}
}
