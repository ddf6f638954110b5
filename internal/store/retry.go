package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// isSQLiteConflict checks for SQLITE_BUSY / "database is locked" errors,
// which warrant a retry rather than surfacing to the caller.
func isSQLiteConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// execWithRetry executes a write statement, retrying with exponential backoff
// when the database is briefly locked by a concurrent writer.
func (s *SQLiteStore) execWithRetry(ctx context.Context, op, query string, args ...interface{}) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		_, err := s.db.ExecContext(ctx, query, args...)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isSQLiteConflict(err) {
			return fmt.Errorf("%s: %w", op, err)
		}
		if i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i) // 100ms, 200ms, 400ms
			slog.Debug("sqlite write busy, retrying", "op", op, "attempt", i+1, "delay", delay)
			time.Sleep(delay)
		}
	}

	return fmt.Errorf("%s after %d attempts: %w", op, maxRetries, lastErr)
}
