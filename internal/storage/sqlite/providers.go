package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tanaste/tanaste/internal/types"
)

// UpsertProvider registers a harvest provider in the provider_registry
// table. Called once per provider at dispatcher startup.
func (s *SQLiteStore) UpsertProvider(ctx context.Context, providerID, name, domain string, tags []string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO provider_registry (provider_id, name, domain, capability_tags, registered_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(provider_id) DO UPDATE SET
			name = excluded.name,
			domain = excluded.domain,
			capability_tags = excluded.capability_tags`,
		providerID, name, domain, strings.Join(tags, ","),
		types.FormatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to upsert provider: %w", err)
	}
	return nil
}

// SetProviderConfig stores per-provider scoring configuration. Field
// weights are serialised as a JSON object.
func (s *SQLiteStore) SetProviderConfig(ctx context.Context, name string, enabled bool, weight float64, fieldWeights map[string]float64) error {
	blob := "{}"
	if len(fieldWeights) > 0 {
		b, err := json.Marshal(fieldWeights)
		if err != nil {
			return fmt.Errorf("failed to encode field weights: %w", err)
		}
		blob = string(b)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO provider_config (name, enabled, weight, field_weights)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			enabled = excluded.enabled,
			weight = excluded.weight,
			field_weights = excluded.field_weights`,
		name, boolToInt(enabled), weight, blob)
	if err != nil {
		return fmt.Errorf("failed to set provider config: %w", err)
	}
	return nil
}

// GetProviderWeights loads the global and per-field weight maps for
// enabled providers. Disabled providers are omitted entirely.
func (s *SQLiteStore) GetProviderWeights(ctx context.Context) (map[string]float64, map[string]map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, weight, field_weights FROM provider_config WHERE enabled = 1")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query provider config: %w", err)
	}
	defer func() { _ = rows.Close() }()

	weights := make(map[string]float64)
	fieldWeights := make(map[string]map[string]float64)
	for rows.Next() {
		var (
			name   string
			weight float64
			blob   string
		)
		if err := rows.Scan(&name, &weight, &blob); err != nil {
			return nil, nil, err
		}
		weights[name] = weight
		if blob != "" && blob != "{}" {
			fw := make(map[string]float64)
			if err := json.Unmarshal([]byte(blob), &fw); err == nil && len(fw) > 0 {
				fieldWeights[name] = fw
			}
		}
	}
	return weights, fieldWeights, rows.Err()
}
