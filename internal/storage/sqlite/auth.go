package sqlite

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/tanaste/tanaste/internal/storage"
	"github.com/tanaste/tanaste/internal/types"
)

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashAPIKey(salt, plaintext string) string {
	sum := sha256.Sum256([]byte(salt + plaintext))
	return hex.EncodeToString(sum[:])
}

// CreateAPIKey issues a new key. The plaintext is returned exactly once;
// only the salted hash is persisted.
func (s *SQLiteStore) CreateAPIKey(ctx context.Context, label string, role types.ProfileRole) (string, *types.APIKey, error) {
	secret, err := randomHex(32)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate key: %w", err)
	}
	plaintext := "tnk_" + secret
	salt, err := randomHex(16)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	key := &types.APIKey{
		ID:        types.NewID(),
		Label:     label,
		Role:      role,
		Salt:      salt,
		Hash:      hashAPIKey(salt, plaintext),
		CreatedAt: time.Now(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, label, role, salt, key_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		key.ID, key.Label, string(key.Role), key.Salt, key.Hash,
		types.FormatTime(key.CreatedAt))
	if err != nil {
		return "", nil, fmt.Errorf("failed to store api key: %w", err)
	}
	return plaintext, key, nil
}

// VerifyAPIKey checks a presented plaintext against every stored salted
// hash. Constant-time comparison per candidate row.
func (s *SQLiteStore) VerifyAPIKey(ctx context.Context, plaintext string) (*types.APIKey, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, label, role, salt, key_hash, created_at FROM api_keys")
	if err != nil {
		return nil, fmt.Errorf("failed to query api keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			k         types.APIKey
			role      string
			createdAt string
		)
		if err := rows.Scan(&k.ID, &k.Label, &role, &k.Salt, &k.Hash, &createdAt); err != nil {
			return nil, err
		}
		candidate := hashAPIKey(k.Salt, plaintext)
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(k.Hash)) == 1 {
			k.Role = types.ProfileRole(role)
			k.CreatedAt = parseTime(createdAt)
			return &k, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return nil, storage.ErrNotFound
}

// CreateProfile inserts a new dashboard profile.
func (s *SQLiteStore) CreateProfile(ctx context.Context, displayName string, role types.ProfileRole) (*types.Profile, error) {
	p := &types.Profile{
		ID:          types.NewID(),
		DisplayName: displayName,
		Role:        role,
		CreatedAt:   time.Now(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, display_name, role, created_at)
		VALUES (?, ?, ?, ?)`,
		p.ID, p.DisplayName, string(p.Role), types.FormatTime(p.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return p, nil
}

// ListProfiles returns all profiles ordered by creation time.
func (s *SQLiteStore) ListProfiles(ctx context.Context) ([]*types.Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, display_name, role, created_at FROM profiles ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Profile
	for rows.Next() {
		var (
			p         types.Profile
			role      string
			createdAt string
		)
		if err := rows.Scan(&p.ID, &p.DisplayName, &role, &createdAt); err != nil {
			return nil, err
		}
		p.Role = types.ProfileRole(role)
		p.CreatedAt = parseTime(createdAt)
		out = append(out, &p)
	}
	return out, rows.Err()
}

// DeleteProfile removes a profile. The seed Owner profile and the last
// remaining administrator are protected.
func (s *SQLiteStore) DeleteProfile(ctx context.Context, id string) error {
	var (
		displayName string
		role        string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT display_name, role FROM profiles WHERE id = ?", id).
		Scan(&displayName, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return err
	}
	if displayName == types.OwnerProfileName {
		return storage.ErrProtectedProfile
	}
	if types.ProfileRole(role) == types.ProfileAdministrator {
		var admins int
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM profiles WHERE role = ?",
			string(types.ProfileAdministrator)).Scan(&admins); err != nil {
			return err
		}
		if admins <= 1 {
			return storage.ErrLastAdministrator
		}
	}
	_, err = s.db.ExecContext(ctx, "DELETE FROM profiles WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	return nil
}

// EnsureOwnerProfile creates the seed Owner administrator if absent and
// returns it.
func (s *SQLiteStore) EnsureOwnerProfile(ctx context.Context) (*types.Profile, error) {
	var (
		p         types.Profile
		role      string
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, display_name, role, created_at FROM profiles WHERE display_name = ?",
		types.OwnerProfileName).
		Scan(&p.ID, &p.DisplayName, &role, &createdAt)
	if err == nil {
		p.Role = types.ProfileRole(role)
		p.CreatedAt = parseTime(createdAt)
		return &p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return s.CreateProfile(ctx, types.OwnerProfileName, types.ProfileAdministrator)
}
