package util

import (
	"context"
	"log/slog"
	"time"
)

// Retry calls fn up to maxAttempts times with exponential backoff starting at
// baseDelay. It returns nil on the first successful call, or the last error
// if all attempts fail. Failed attempts are logged at warn level when log is
// non-nil. Context cancellation between attempts ends the loop.
func Retry(ctx context.Context, log *slog.Logger, maxAttempts int, baseDelay time.Duration, fn func(ctx context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	delay := baseDelay

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}
		if log != nil {
			log.Warn("attempt failed, retrying", "attempt", attempt, "of", maxAttempts, "delay", delay, "err", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return err
}
