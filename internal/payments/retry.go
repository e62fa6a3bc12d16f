package payments

import (
	"context"
	"time"
)

// Retry runs fn up to attempts times, sleeping delay between tries.
// Only transient gateway errors are retried; anything else is returned
// immediately. Callers must not hold locks across Retry.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err = fn(); err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
	}
	return err
}
