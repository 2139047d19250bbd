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

const insertHubSQL = `
	INSERT INTO hubs (id, universe_id, display_name, year, external_id, franchise, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

func execCreateHub(ctx context.Context, e execer, h *types.Hub) error {
	if h.ID == "" {
		h.ID = types.NewID()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}
	_, err := e.ExecContext(ctx, insertHubSQL,
		h.ID, h.UniverseID, h.DisplayName, h.Year, h.ExternalID, h.Franchise,
		types.FormatTime(h.CreatedAt))
	return err
}

// CreateHub inserts a new hub.
func (s *SQLiteStore) CreateHub(ctx context.Context, hub *types.Hub) error {
	if err := execCreateHub(ctx, s.db, hub); err != nil {
		return fmt.Errorf("failed to create hub: %w", err)
	}
	return nil
}

const selectHubSQL = `
	SELECT id, universe_id, display_name, year, external_id, franchise, created_at
	FROM hubs`

func scanHub(row *sql.Row) (*types.Hub, error) {
	var (
		h         types.Hub
		universe  sql.NullString
		createdAt string
	)
	err := row.Scan(&h.ID, &universe, &h.DisplayName, &h.Year, &h.ExternalID,
		&h.Franchise, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if universe.Valid {
		h.UniverseID = &universe.String
	}
	h.CreatedAt = parseTime(createdAt)
	return &h, nil
}

// GetHub returns a hub by id.
func (s *SQLiteStore) GetHub(ctx context.Context, id string) (*types.Hub, error) {
	return scanHub(s.db.QueryRowContext(ctx, selectHubSQL+" WHERE id = ?", id))
}

// FindHubByName looks a hub up by display name, case-insensitively.
func (s *SQLiteStore) FindHubByName(ctx context.Context, displayName string) (*types.Hub, error) {
	return scanHub(s.db.QueryRowContext(ctx,
		selectHubSQL+" WHERE display_name = ? COLLATE NOCASE", displayName))
}

// UpdateHub overwrites a hub's descriptive fields.
func (s *SQLiteStore) UpdateHub(ctx context.Context, hub *types.Hub) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE hubs SET universe_id = ?, display_name = ?, year = ?,
		       external_id = ?, franchise = ?
		WHERE id = ?`,
		hub.UniverseID, hub.DisplayName, hub.Year, hub.ExternalID, hub.Franchise, hub.ID)
	if err != nil {
		return fmt.Errorf("failed to update hub: %w", err)
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

// DeleteHub removes a hub and reassigns its works to the "Unassigned"
// sentinel hub so no work is left orphaned. The sentinel itself cannot be
// deleted.
func (s *SQLiteStore) DeleteHub(ctx context.Context, id string) error {
	hub, err := s.GetHub(ctx, id)
	if err != nil {
		return err
	}
	if hub.DisplayName == types.UnassignedHubName {
		return fmt.Errorf("cannot delete the %q sentinel hub", types.UnassignedHubName)
	}

	sentinel, err := s.ensureUnassignedHub(ctx)
	if err != nil {
		return err
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

	if _, err := conn.ExecContext(ctx,
		"UPDATE works SET hub_id = ? WHERE hub_id = ?", sentinel.ID, id); err != nil {
		return fmt.Errorf("failed to reassign works: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "DELETE FROM hubs WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete hub: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit hub delete: %w", err)
	}
	committed = true
	return nil
}

func (s *SQLiteStore) ensureUnassignedHub(ctx context.Context) (*types.Hub, error) {
	hub, err := s.FindHubByName(ctx, types.UnassignedHubName)
	if err == nil {
		return hub, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	hub = &types.Hub{DisplayName: types.UnassignedHubName}
	if err := s.CreateHub(ctx, hub); err != nil {
		return nil, err
	}
	return hub, nil
}

const insertWorkSQL = `
	INSERT INTO works (id, hub_id, title, media_type, sequence, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

func execCreateWork(ctx context.Context, e execer, w *types.Work) error {
	if w.ID == "" {
		w.ID = types.NewID()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	_, err := e.ExecContext(ctx, insertWorkSQL,
		w.ID, w.HubID, w.Title, string(w.MediaType), w.Sequence,
		types.FormatTime(w.CreatedAt))
	return err
}

// CreateWork inserts a new work.
func (s *SQLiteStore) CreateWork(ctx context.Context, work *types.Work) error {
	if err := execCreateWork(ctx, s.db, work); err != nil {
		return fmt.Errorf("failed to create work: %w", err)
	}
	return nil
}

const selectWorkSQL = `
	SELECT id, hub_id, title, media_type, sequence, created_at FROM works`

func scanWork(row *sql.Row) (*types.Work, error) {
	var (
		w         types.Work
		hubID     sql.NullString
		mt        string
		seq       sql.NullInt64
		createdAt string
	)
	err := row.Scan(&w.ID, &hubID, &w.Title, &mt, &seq, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if hubID.Valid {
		w.HubID = &hubID.String
	}
	if seq.Valid {
		n := int(seq.Int64)
		w.Sequence = &n
	}
	w.MediaType = types.MediaType(mt)
	w.CreatedAt = parseTime(createdAt)
	return &w, nil
}

// GetWork returns a work by id.
func (s *SQLiteStore) GetWork(ctx context.Context, id string) (*types.Work, error) {
	return scanWork(s.db.QueryRowContext(ctx, selectWorkSQL+" WHERE id = ?", id))
}

// FindWork looks up a work in a hub by title (case-insensitive) and media
// type.
func (s *SQLiteStore) FindWork(ctx context.Context, hubID, title string, mediaType types.MediaType) (*types.Work, error) {
	return scanWork(s.db.QueryRowContext(ctx,
		selectWorkSQL+" WHERE hub_id = ? AND title = ? COLLATE NOCASE AND media_type = ?",
		hubID, title, string(mediaType)))
}

const insertEditionSQL = `
	INSERT INTO editions (id, work_id, format_label, created_at)
	VALUES (?, ?, ?, ?)`

func execCreateEdition(ctx context.Context, e execer, ed *types.Edition) error {
	if ed.ID == "" {
		ed.ID = types.NewID()
	}
	if ed.CreatedAt.IsZero() {
		ed.CreatedAt = time.Now()
	}
	_, err := e.ExecContext(ctx, insertEditionSQL,
		ed.ID, ed.WorkID, ed.FormatLabel, types.FormatTime(ed.CreatedAt))
	return err
}

// CreateEdition inserts a new edition.
func (s *SQLiteStore) CreateEdition(ctx context.Context, edition *types.Edition) error {
	if err := execCreateEdition(ctx, s.db, edition); err != nil {
		return fmt.Errorf("failed to create edition: %w", err)
	}
	return nil
}

// GetEdition returns an edition by id.
func (s *SQLiteStore) GetEdition(ctx context.Context, id string) (*types.Edition, error) {
	var (
		ed        types.Edition
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, work_id, format_label, created_at FROM editions WHERE id = ?", id).
		Scan(&ed.ID, &ed.WorkID, &ed.FormatLabel, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ed.CreatedAt = parseTime(createdAt)
	return &ed, nil
}
