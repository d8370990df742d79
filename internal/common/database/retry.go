// internal/common/database/retry.go
package database

import (
	"context"
	"fmt"
	"time"
)

// Pinger is implemented by every client in this package.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WaitReady pings p until it answers, doubling the delay between attempts.
func WaitReady(ctx context.Context, name string, p Pinger, attempts int, initialDelay time.Duration) error {
	delay := initialDelay
	var err error
	for i := 1; i <= attempts; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = p.Ping(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("%s not ready after %d attempts: %w", name, attempts, err)
}
