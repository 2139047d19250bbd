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

const insertAssetSQL = `
	INSERT OR IGNORE INTO media_assets (
		id, edition_id, content_hash, path_root, file_size,
		media_type, format, status, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func execInsertAsset(ctx context.Context, e execer, a *types.MediaAsset) (bool, error) {
	if a.ID == "" {
		a.ID = types.NewID()
	}
	if a.Status == "" {
		a.Status = types.AssetNormal
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	res, err := e.ExecContext(ctx, insertAssetSQL,
		a.ID, a.EditionID, a.ContentHash, a.PathRoot, a.FileSize,
		string(a.MediaType), string(a.Format), string(a.Status),
		types.FormatTime(a.CreatedAt))
	if err != nil {
		return false, err
	}
	// INSERT OR IGNORE: concurrent racing inserts of the same hash resolve
	// to exactly one winner with no error.
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// InsertAsset inserts an asset, at most once per content hash. It reports
// whether a new row was written.
func (s *SQLiteStore) InsertAsset(ctx context.Context, asset *types.MediaAsset) (bool, error) {
	inserted, err := execInsertAsset(ctx, s.db, asset)
	if err != nil {
		return false, fmt.Errorf("failed to insert asset: %w", err)
	}
	return inserted, nil
}

const selectAssetSQL = `
	SELECT id, edition_id, content_hash, path_root, file_size,
	       media_type, format, status, created_at
	FROM media_assets`

func scanAsset(row *sql.Row) (*types.MediaAsset, error) {
	var (
		a         types.MediaAsset
		mt, f, st string
		createdAt string
	)
	err := row.Scan(&a.ID, &a.EditionID, &a.ContentHash, &a.PathRoot, &a.FileSize,
		&mt, &f, &st, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.MediaType = types.MediaType(mt)
	a.Format = types.Format(f)
	a.Status = types.AssetStatus(st)
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

// GetAssetByHash looks up an asset by its lowercase hex content hash.
func (s *SQLiteStore) GetAssetByHash(ctx context.Context, hash string) (*types.MediaAsset, error) {
	return scanAsset(s.db.QueryRowContext(ctx,
		selectAssetSQL+" WHERE content_hash = ?", hash))
}

// GetAssetByPathRoot looks up an asset by its current on-disk path.
func (s *SQLiteStore) GetAssetByPathRoot(ctx context.Context, pathRoot string) (*types.MediaAsset, error) {
	return scanAsset(s.db.QueryRowContext(ctx,
		selectAssetSQL+" WHERE path_root = ?", pathRoot))
}

// UpdateAssetStatus transitions an asset's lifecycle status.
func (s *SQLiteStore) UpdateAssetStatus(ctx context.Context, id string, status types.AssetStatus) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE media_assets SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update asset status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpdateAssetPath records the asset's new location after an organised move.
// The content hash, not the path, remains the identity.
func (s *SQLiteStore) UpdateAssetPath(ctx context.Context, id, pathRoot string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE media_assets SET path_root = ? WHERE id = ?", pathRoot, id)
	if err != nil {
		return fmt.Errorf("failed to update asset path: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
