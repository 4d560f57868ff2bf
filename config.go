package sheetstore

import (
	"log/slog"
	"time"
)

// Config tunes the store's retry policy and logging.
type Config struct {
	MaxRetries       int           // retries after the first attempt (default: 3)
	RetryInterval    time.Duration // base delay for exponential backoff (default: 1s)
	MaxRetryInterval time.Duration // backoff cap (default: 30s)
	Logger           *slog.Logger  // default: slog.Default()
}

func (c *Config) applyDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 1 * time.Second
	}
	if c.MaxRetryInterval <= 0 {
		c.MaxRetryInterval = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
