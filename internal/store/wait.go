package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// WaitForDB pings db every interval until it answers or timeout elapses.
func WaitForDB(ctx context.Context, db *sql.DB, timeout, interval time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("database not ready within %s: %w", timeout, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
