package sqlite

import (
	"context"
	"strings"
	"time"
)

// retryOnBusy retries operation on SQLITE_BUSY / "database is locked" with
// exponential backoff. The connection pool is capped at one open connection
// (see connection.go), so writes already serialize in-process; this guards
// against transient busy errors from WAL checkpointing and from any external
// process sharing the same database file.
func retryOnBusy(ctx context.Context, operation func() error) error {
	const maxAttempts = 5
	backoff := 50 * time.Millisecond

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = operation()
		if err == nil {
			return nil
		}
		if !isBusyError(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
