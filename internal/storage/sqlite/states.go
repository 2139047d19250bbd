package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tanaste/tanaste/internal/storage"
	"github.com/tanaste/tanaste/internal/types"
)

// SetUserState stores one key/value of per-profile dashboard state.
func (s *SQLiteStore) SetUserState(ctx context.Context, profileID, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_states (profile_id, state_key, state_value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(profile_id, state_key) DO UPDATE SET
			state_value = excluded.state_value,
			updated_at = excluded.updated_at`,
		profileID, key, value, types.FormatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to set user state: %w", err)
	}
	return nil
}

// GetUserState returns one key of per-profile state.
func (s *SQLiteStore) GetUserState(ctx context.Context, profileID, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT state_value FROM user_states WHERE profile_id = ? AND state_key = ?",
		profileID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	return value, err
}

func execAppendTransactionLog(ctx context.Context, e execer, op, entityID, detail string) error {
	_, err := e.ExecContext(ctx, `
		INSERT INTO transaction_log (op, entity_id, detail, logged_at)
		VALUES (?, ?, ?, ?)`,
		op, entityID, detail, types.FormatTime(time.Now()))
	return err
}

// AppendTransactionLog appends one row to the monotonic audit log.
func (s *SQLiteStore) AppendTransactionLog(ctx context.Context, op, entityID, detail string) error {
	if err := execAppendTransactionLog(ctx, s.db, op, entityID, detail); err != nil {
		return fmt.Errorf("failed to append transaction log: %w", err)
	}
	return nil
}
