package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tanaste/tanaste/internal/types"
)

// UserProviderID tags claims asserted directly by a user.
const UserProviderID = "user"

// LockField appends a user-locked claim and immediately re-scores the
// entity so the canonical value reflects the lock. Empty keys or values
// are rejected before anything is written.
func (e *Engine) LockField(ctx context.Context, entityID, key, value string) error {
	if strings.TrimSpace(entityID) == "" {
		return fmt.Errorf("engine: lock requires an entity id")
	}
	claim := &types.MetadataClaim{
		EntityID:     entityID,
		EntityType:   types.EntityMediaAsset,
		ProviderID:   UserProviderID,
		Key:          strings.TrimSpace(key),
		Value:        value,
		Confidence:   1.0,
		ClaimedAt:    time.Now(),
		IsUserLocked: true,
	}
	if err := claim.Validate(); err != nil {
		return err
	}

	if err := e.store.InsertClaims(ctx, []*types.MetadataClaim{claim}); err != nil {
		return err
	}
	return e.Rescore(ctx, entityID)
}

// Rescore recomputes the entity's canonicals from its full claim history
// with the current weights.
func (e *Engine) Rescore(ctx context.Context, entityID string) error {
	claims, err := e.store.GetClaimsByEntity(ctx, entityID)
	if err != nil {
		return err
	}
	if len(claims) == 0 {
		return nil
	}
	result := e.scorer.ScoreEntity(claims, e.localWeights())
	return e.store.UpsertCanonicals(ctx, result.Canonicals(entityID, claims[0].EntityType, time.Now()))
}
