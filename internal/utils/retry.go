package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Retry runs fn up to maxAttempts times with exponential backoff starting at
// delay. It stops early if ctx is cancelled during a backoff wait.
func Retry(ctx context.Context, logger *logrus.Logger, maxAttempts int, delay time.Duration, fn func() error) error {
	var lastErr error
	wait := delay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := fn(); err != nil {
			lastErr = err
			logger.Errorf("Attempt %d/%d failed: %v", attempt, maxAttempts, err)
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return fmt.Errorf("retry cancelled after %d attempts: %w", attempt, lastErr)
				case <-time.After(wait):
				}
				wait *= 2
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}
