package utils

import (
	"context"
	"time"
)

// Retry runs fn up to attempts times, sleeping with exponential backoff
// between failures. Returns nil on the first success, the context error if
// cancelled while waiting, or the last error once attempts are exhausted.
func Retry(ctx context.Context, attempts int, initialDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	delay := initialDelay
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
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
