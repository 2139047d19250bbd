package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tanaste/tanaste/internal/types"
)

const insertClaimSQL = `
	INSERT INTO metadata_claims (
		id, entity_id, entity_type, provider_id,
		claim_key, claim_value, confidence, claimed_at, is_user_locked
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func execInsertClaim(ctx context.Context, e execer, c *types.MetadataClaim) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = types.NewID()
	}
	if c.ClaimedAt.IsZero() {
		c.ClaimedAt = time.Now()
	}
	_, err := e.ExecContext(ctx, insertClaimSQL,
		c.ID, c.EntityID, string(c.EntityType), c.ProviderID,
		c.Key, c.Value, c.Confidence, types.FormatTime(c.ClaimedAt),
		boolToInt(c.IsUserLocked))
	return err
}

// execer abstracts *sql.DB, *sql.Conn and *sql.Tx for shared statements.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// InsertClaims appends a batch of claims in a single transaction. The log
// is append-only; there is no update or delete counterpart.
func (s *SQLiteStore) InsertClaims(ctx context.Context, claims []*types.MetadataClaim) error {
	if len(claims) == 0 {
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

	for _, c := range claims {
		if err := execInsertClaim(ctx, conn, c); err != nil {
			return fmt.Errorf("failed to insert claim %s/%s: %w", c.EntityID, c.Key, err)
		}
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit claims: %w", err)
	}
	committed = true
	return nil
}

const selectClaimSQL = `
	SELECT id, entity_id, entity_type, provider_id,
	       claim_key, claim_value, confidence, claimed_at, is_user_locked
	FROM metadata_claims`

func scanClaims(rows *sql.Rows) ([]*types.MetadataClaim, error) {
	var out []*types.MetadataClaim
	for rows.Next() {
		var (
			c         types.MetadataClaim
			et        string
			claimedAt string
			locked    int
		)
		if err := rows.Scan(&c.ID, &c.EntityID, &et, &c.ProviderID,
			&c.Key, &c.Value, &c.Confidence, &claimedAt, &locked); err != nil {
			return nil, err
		}
		c.EntityType = types.EntityType(et)
		c.ClaimedAt = parseTime(claimedAt)
		c.IsUserLocked = locked == 1
		out = append(out, &c)
	}
	return out, rows.Err()
}

// GetClaimsByEntity returns all claims for an entity ordered ascending by
// claimed_at. claimed_at is the sole ordering key for re-scoring.
func (s *SQLiteStore) GetClaimsByEntity(ctx context.Context, entityID string) ([]*types.MetadataClaim, error) {
	rows, err := s.db.QueryContext(ctx,
		selectClaimSQL+" WHERE entity_id = ? ORDER BY claimed_at ASC, id ASC", entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query claims: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanClaims(rows)
}

// CountClaims returns the total claim-log row count. The log is monotone:
// this number never decreases.
func (s *SQLiteStore) CountClaims(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM metadata_claims").Scan(&n)
	return n, err
}
