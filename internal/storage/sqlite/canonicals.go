package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tanaste/tanaste/internal/types"
)

const upsertCanonicalSQL = `
	INSERT INTO canonical_values (
		entity_id, entity_type, claim_key, claim_value,
		confidence, last_scored_at, is_conflicted
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(entity_id, claim_key) DO UPDATE SET
		entity_type = excluded.entity_type,
		claim_value = excluded.claim_value,
		confidence = excluded.confidence,
		last_scored_at = excluded.last_scored_at,
		is_conflicted = excluded.is_conflicted`

func execUpsertCanonical(ctx context.Context, e execer, v *types.CanonicalValue) error {
	if v.LastScoredAt.IsZero() {
		v.LastScoredAt = time.Now()
	}
	_, err := e.ExecContext(ctx, upsertCanonicalSQL,
		v.EntityID, string(v.EntityType), v.Key, v.Value,
		v.Confidence, types.FormatTime(v.LastScoredAt), boolToInt(v.IsConflicted))
	return err
}

// UpsertCanonicals atomically writes a batch of canonical values, honouring
// the (entity_id, claim_key) composite primary key.
func (s *SQLiteStore) UpsertCanonicals(ctx context.Context, values []*types.CanonicalValue) error {
	if len(values) == 0 {
		return nil
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := beginImmediateWithRetry(ctx, conn, 5, 10*time.Millisecond); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	for _, v := range values {
		if err := execUpsertCanonical(ctx, conn, v); err != nil {
			return fmt.Errorf("failed to upsert canonical %s/%s: %w", v.EntityID, v.Key, err)
		}
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit canonicals: %w", err)
	}
	committed = true
	return nil
}

const selectCanonicalSQL = `
	SELECT entity_id, entity_type, claim_key, claim_value,
	       confidence, last_scored_at, is_conflicted
	FROM canonical_values`

func scanCanonicals(rows *sql.Rows) ([]*types.CanonicalValue, error) {
	var out []*types.CanonicalValue
	for rows.Next() {
		var (
			v          types.CanonicalValue
			et         string
			scoredAt   string
			conflicted int
		)
		if err := rows.Scan(&v.EntityID, &et, &v.Key, &v.Value,
			&v.Confidence, &scoredAt, &conflicted); err != nil {
			return nil, err
		}
		v.EntityType = types.EntityType(et)
		v.LastScoredAt = parseTime(scoredAt)
		v.IsConflicted = conflicted == 1
		out = append(out, &v)
	}
	return out, rows.Err()
}

// GetCanonicalsByEntity returns canonical values for an entity ordered by key.
func (s *SQLiteStore) GetCanonicalsByEntity(ctx context.Context, entityID string) ([]*types.CanonicalValue, error) {
	rows, err := s.db.QueryContext(ctx,
		selectCanonicalSQL+" WHERE entity_id = ? ORDER BY claim_key ASC", entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query canonicals: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanCanonicals(rows)
}

// GetConflicted returns all canonicals flagged conflicted, most recently
// scored first.
func (s *SQLiteStore) GetConflicted(ctx context.Context) ([]*types.CanonicalValue, error) {
	rows, err := s.db.QueryContext(ctx,
		selectCanonicalSQL+" WHERE is_conflicted = 1 ORDER BY last_scored_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query conflicted canonicals: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanCanonicals(rows)
}
