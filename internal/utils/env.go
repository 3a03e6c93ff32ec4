package utils

import (
	"os"
	"strconv"
	"time"

	"github.com/relaylabs/relayq/internal/logger"
)

// GetEnv reads key from the environment, logging (at debug level) whether
// the default or the environment value was used.
func GetEnv(key, defaultVal string, log *logger.Logger) string {
	if log != nil {
		log = log.With("env_var", key)
	}
	val, ok := os.LookupEnv(key)
	if !ok {
		if log != nil {
			log.Debug("environment variable not found, using default", "default", defaultVal)
		}
		return defaultVal
	}
	if log != nil {
		log.Debug("environment variable found, using environment", "value", val)
	}
	return val
}

// GetEnvAsInt is GetEnv with int parsing; a malformed value falls back to
// defaultVal rather than failing startup.
func GetEnvAsInt(key string, defaultVal int, log *logger.Logger) int {
	if log != nil {
		log = log.With("env_var", key)
	}
	val, ok := os.LookupEnv(key)
	if !ok {
		if log != nil {
			log.Debug("environment variable not found, using default", "default", defaultVal)
		}
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		if log != nil {
			log.Debug("environment variable could not be parsed as int, using default", "provided", val, "default", defaultVal, "error", err)
		}
		return defaultVal
	}
	return i
}

// GetEnvAsDuration is GetEnv with time.ParseDuration.
func GetEnvAsDuration(key string, defaultVal time.Duration, log *logger.Logger) time.Duration {
	if log != nil {
		log = log.With("env_var", key)
	}
	val, ok := os.LookupEnv(key)
	if !ok {
		if log != nil {
			log.Debug("environment variable not found, using default", "default", defaultVal)
		}
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		if log != nil {
			log.Debug("environment variable could not be parsed as duration, using default", "provided", val, "default", defaultVal, "error", err)
		}
		return defaultVal
	}
	return d
}
