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

// CreatePerson inserts a new person. The (name, role) pair is unique
// case-insensitively; callers should FindPerson first.
func (s *SQLiteStore) CreatePerson(ctx context.Context, person *types.Person) error {
	if person.ID == "" {
		person.ID = types.NewID()
	}
	if person.CreatedAt.IsZero() {
		person.CreatedAt = time.Now()
	}
	var enrichedAt interface{}
	if person.EnrichedAt != nil {
		enrichedAt = types.FormatTime(*person.EnrichedAt)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO persons (id, name, role, external_id, portrait_url, biography, created_at, enriched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		person.ID, person.Name, string(person.Role), person.ExternalID,
		person.PortraitURL, person.Biography,
		types.FormatTime(person.CreatedAt), enrichedAt)
	if err != nil {
		return fmt.Errorf("failed to create person: %w", err)
	}
	return nil
}

const selectPersonSQL = `
	SELECT id, name, role, external_id, portrait_url, biography, created_at, enriched_at
	FROM persons`

func scanPerson(row *sql.Row) (*types.Person, error) {
	var (
		p          types.Person
		role       string
		createdAt  string
		enrichedAt sql.NullString
	)
	err := row.Scan(&p.ID, &p.Name, &role, &p.ExternalID, &p.PortraitURL,
		&p.Biography, &createdAt, &enrichedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Role = types.PersonRole(role)
	p.CreatedAt = parseTime(createdAt)
	p.EnrichedAt = parseTimePtr(enrichedAt)
	return &p, nil
}

// GetPerson returns a person by id.
func (s *SQLiteStore) GetPerson(ctx context.Context, id string) (*types.Person, error) {
	return scanPerson(s.db.QueryRowContext(ctx, selectPersonSQL+" WHERE id = ?", id))
}

// FindPerson looks up a person by name (case-insensitive) and role.
func (s *SQLiteStore) FindPerson(ctx context.Context, name string, role types.PersonRole) (*types.Person, error) {
	return scanPerson(s.db.QueryRowContext(ctx,
		selectPersonSQL+" WHERE name = ? COLLATE NOCASE AND role = ?", name, string(role)))
}

// LinkPersonToAsset records the person/asset relationship. Idempotent.
func (s *SQLiteStore) LinkPersonToAsset(ctx context.Context, assetID, personID string, role types.PersonRole) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO person_media_links (asset_id, person_id, role)
		VALUES (?, ?, ?)`,
		assetID, personID, string(role))
	if err != nil {
		return fmt.Errorf("failed to link person to asset: %w", err)
	}
	return nil
}

// GetLinksForAsset returns the person links for an asset.
func (s *SQLiteStore) GetLinksForAsset(ctx context.Context, assetID string) ([]*types.PersonMediaLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT asset_id, person_id, role FROM person_media_links
		WHERE asset_id = ? ORDER BY person_id, role`, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query person links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.PersonMediaLink
	for rows.Next() {
		var (
			l    types.PersonMediaLink
			role string
		)
		if err := rows.Scan(&l.AssetID, &l.PersonID, &role); err != nil {
			return nil, err
		}
		l.Role = types.PersonRole(role)
		out = append(out, &l)
	}
	return out, rows.Err()
}

// UpdatePersonEnrichment records harvested enrichment fields and stamps
// enriched_at, which gates re-enqueueing. Empty arguments leave the
// existing value in place.
func (s *SQLiteStore) UpdatePersonEnrichment(ctx context.Context, id, externalID, portraitURL, biography string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE persons SET
			external_id = CASE WHEN ? != '' THEN ? ELSE external_id END,
			portrait_url = CASE WHEN ? != '' THEN ? ELSE portrait_url END,
			biography = CASE WHEN ? != '' THEN ? ELSE biography END,
			enriched_at = ?
		WHERE id = ?`,
		externalID, externalID, portraitURL, portraitURL, biography, biography,
		types.FormatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update person enrichment: %w", err)
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
