package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/tanaste/tanaste/internal/types"
)

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isBusyError matches SQLITE_BUSY surfaced through the driver.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}

// beginImmediateWithRetry starts an IMMEDIATE transaction, retrying on
// SQLITE_BUSY with doubling delays. IMMEDIATE acquires the write lock up
// front so two writers cannot deadlock mid-transaction.
func beginImmediateWithRetry(ctx context.Context, conn *sql.Conn, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		_, err = conn.ExecContext(ctx, "BEGIN IMMEDIATE")
		if err == nil {
			return nil
		}
		if !isBusyError(err) {
			return err
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

// parseTime scans a canonical-form timestamp column; the zero time is
// returned for malformed values rather than failing the whole row scan.
func parseTime(s string) time.Time {
	t, err := types.ParseTime(s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}
