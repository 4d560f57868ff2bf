package sheetstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/googleapis/gax-go/v2"
)

// withRetry runs fn, retrying transient remote failures with exponential
// backoff. Fatal errors and context cancellation propagate immediately.
func withRetry(ctx context.Context, cfg Config, logger *slog.Logger, op string, fn func() error) error {
	backoff := gax.Backoff{
		Initial:    cfg.RetryInterval,
		Max:        cfg.MaxRetryInterval,
		Multiplier: 2,
	}

	var err error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		pause := backoff.Pause()
		logger.Warn("transient remote failure, retrying",
			"op", op,
			"attempt", attempt+1,
			"backoff", pause,
			"error", err)
		select {
		case <-time.After(pause):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s failed after %d retries: %w", op, cfg.MaxRetries, err)
}
