package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/tanaste/tanaste/internal/storage"
	"github.com/tanaste/tanaste/internal/types"
)

// Verify sqliteTx implements storage.Transaction at compile time
var _ storage.Transaction = (*sqliteTx)(nil)

// sqliteTx implements storage.Transaction over a dedicated connection with
// an active IMMEDIATE transaction.
type sqliteTx struct {
	conn execer
}

// RunInTransaction executes fn within a single database transaction.
//
// Lifecycle:
//  1. Acquire a dedicated connection from the pool
//  2. BEGIN IMMEDIATE with retry on SQLITE_BUSY
//  3. Execute fn with the Transaction interface
//  4. COMMIT on success; ROLLBACK on error or panic
func (s *SQLiteStore) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for transaction: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := beginImmediateWithRetry(ctx, conn, 5, 10*time.Millisecond); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			// Background context so rollback completes even if ctx is cancelled.
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(&sqliteTx{conn: conn}); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

func (t *sqliteTx) CreateHub(ctx context.Context, hub *types.Hub) error {
	return execCreateHub(ctx, t.conn, hub)
}

func (t *sqliteTx) CreateWork(ctx context.Context, work *types.Work) error {
	return execCreateWork(ctx, t.conn, work)
}

func (t *sqliteTx) CreateEdition(ctx context.Context, edition *types.Edition) error {
	return execCreateEdition(ctx, t.conn, edition)
}

func (t *sqliteTx) InsertAsset(ctx context.Context, asset *types.MediaAsset) (bool, error) {
	return execInsertAsset(ctx, t.conn, asset)
}

func (t *sqliteTx) InsertClaims(ctx context.Context, claims []*types.MetadataClaim) error {
	for _, c := range claims {
		if err := execInsertClaim(ctx, t.conn, c); err != nil {
			return err
		}
	}
	return nil
}

func (t *sqliteTx) UpsertCanonicals(ctx context.Context, values []*types.CanonicalValue) error {
	for _, v := range values {
		if err := execUpsertCanonical(ctx, t.conn, v); err != nil {
			return err
		}
	}
	return nil
}

func (t *sqliteTx) AppendTransactionLog(ctx context.Context, op, entityID, detail string) error {
	return execAppendTransactionLog(ctx, t.conn, op, entityID, detail)
}
