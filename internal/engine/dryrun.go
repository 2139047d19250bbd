package engine

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/tanaste/tanaste/internal/hashing"
	"github.com/tanaste/tanaste/internal/sidecar"
	"github.com/tanaste/tanaste/internal/storage"
	"github.com/tanaste/tanaste/internal/types"
)

// OperationKind classifies one planned dry-run action.
type OperationKind string

const (
	OpSkip          OperationKind = "Skip"
	OpQuarantine    OperationKind = "Quarantine"
	OpMove          OperationKind = "Move"
	OpWriteTag      OperationKind = "WriteTag"
	OpWriteCoverArt OperationKind = "WriteCoverArt"
)

// PendingOperation is one action DryRun would take for a file.
type PendingOperation struct {
	Source      string        `json:"source"`
	Destination string        `json:"destination,omitempty"`
	Kind        OperationKind `json:"kind"`
	Reason      string        `json:"reason,omitempty"`
}

// DryRun walks root and reports what ingesting each file would do without
// mutating the database or the filesystem.
func (e *Engine) DryRun(ctx context.Context, root string) ([]PendingOperation, error) {
	var ops []PendingOperation
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if name == sidecar.FileName || name == sidecar.CoverFileName {
			return nil
		}
		ops = append(ops, e.planFile(ctx, path)...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ops, nil
}

// planFile computes the operations for one file. It mirrors
// handleCandidate's decisions but persists nothing.
func (e *Engine) planFile(ctx context.Context, path string) []PendingOperation {
	hashRes, err := hashing.Compute(ctx, path)
	if err != nil {
		return []PendingOperation{{Source: path, Kind: OpSkip, Reason: "unreadable: " + err.Error()}}
	}
	if _, err := e.store.GetAssetByHash(ctx, hashRes.Hex); err == nil {
		return []PendingOperation{{Source: path, Kind: OpSkip, Reason: "already ingested"}}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return []PendingOperation{{Source: path, Kind: OpSkip, Reason: err.Error()}}
	}

	procRes, err := e.registry.Process(ctx, path)
	if err != nil {
		return []PendingOperation{{Source: path, Kind: OpSkip, Reason: err.Error()}}
	}
	if procRes.IsCorrupt {
		return []PendingOperation{{Source: path, Kind: OpQuarantine, Reason: procRes.CorruptReason}}
	}

	format := types.Format(procRes.DetectedType)
	mediaType := format.MediaType()
	now := time.Now()
	claims := make([]*types.MetadataClaim, 0, len(procRes.Claims))
	for _, ec := range procRes.Claims {
		claims = append(claims, &types.MetadataClaim{
			EntityID:   "dryrun",
			EntityType: types.EntityMediaAsset,
			ProviderID: types.LocalProcessorID,
			Key:        ec.Key,
			Value:      ec.Value,
			Confidence: ec.Confidence,
			ClaimedAt:  now,
		})
	}
	result := e.scorer.ScoreEntity(claims, e.localWeights())
	if !e.shouldOrganize(result) {
		return []PendingOperation{{
			Source: path,
			Kind:   OpSkip,
			Reason: "confidence below auto-link threshold",
		}}
	}

	fields := flatten(result)
	title := firstNonEmpty(fields[types.KeyTitle], strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	dest := e.organizer.DestinationFor(path, tokenValues(title, mediaType, format, fields))

	ops := []PendingOperation{{Source: path, Destination: dest, Kind: OpMove}}
	if len(procRes.Cover) > 0 {
		ops = append(ops, PendingOperation{
			Source:      path,
			Destination: filepath.Join(filepath.Dir(dest), sidecar.CoverFileName),
			Kind:        OpWriteCoverArt,
		})
	}
	if e.manifest.Ingestion.WriteBack && e.taggerFor(path) != nil {
		ops = append(ops, PendingOperation{Source: path, Destination: dest, Kind: OpWriteTag})
	}
	return ops
}
