package sidecar

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tanaste/tanaste/internal/debug"
	"github.com/tanaste/tanaste/internal/storage"
	"github.com/tanaste/tanaste/internal/types"
)

// Summary reports one library scan.
type Summary struct {
	HubsUpserted     int
	EditionsUpserted int
	Errors           int
	Elapsed          time.Duration
}

// Scanner rebuilds canonical state from sidecar files — the "great
// inhale". It reads sidecars only: no hashing, no media parsing, and it
// never modifies filesystem state.
type Scanner struct {
	store storage.Store
}

// NewScanner creates a scanner over the given store.
func NewScanner(store storage.Store) *Scanner {
	return &Scanner{store: store}
}

// scanParallelism bounds concurrent sidecar parsing. Database writes
// serialise on the store.
const scanParallelism = 4

// Scan walks root recursively, classifying each tanaste.xml by its root
// element and upserting hubs and editions. Edition sidecars whose content
// hash matches no known asset are skipped silently; a fresh ingestion pass
// is required to create the asset first.
func (s *Scanner) Scan(ctx context.Context, root string) (*Summary, error) {
	start := time.Now()
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == FileName {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		summary Summary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanParallelism)
	for _, path := range paths {
		g.Go(func() error {
			hub, edition, err := s.scanOne(gctx, path)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				debug.Logf("scanner: %s: %v\n", path, err)
				summary.Errors++
			case hub:
				summary.HubsUpserted++
			case edition:
				summary.EditionsUpserted++
			}
			// Per-file failures are counted, never fatal.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary.Elapsed = time.Since(start)
	return &summary, nil
}

func (s *Scanner) scanOne(ctx context.Context, path string) (hub, edition bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, false, err
	}
	switch probeRoot(data) {
	case rootHub:
		sc, err := ReadHub(path)
		if err != nil {
			return false, false, err
		}
		if err := s.inhaleHub(ctx, sc); err != nil {
			return false, false, err
		}
		return true, false, nil
	case rootEdition:
		sc, err := ReadEdition(path)
		if err != nil {
			return false, false, err
		}
		matched, err := s.inhaleEdition(ctx, sc)
		if err != nil {
			return false, false, err
		}
		return false, matched, nil
	default:
		return false, false, errors.New("unrecognised sidecar root element")
	}
}

// inhaleHub finds the hub by display name case-insensitively and updates
// it, or creates it. The XML wins on conflict.
func (s *Scanner) inhaleHub(ctx context.Context, sc *HubSidecar) error {
	existing, err := s.store.FindHubByName(ctx, sc.DisplayName)
	if errors.Is(err, storage.ErrNotFound) {
		return s.store.CreateHub(ctx, &types.Hub{
			DisplayName: sc.DisplayName,
			Year:        sc.Year,
			ExternalID:  sc.ExternalID,
			Franchise:   sc.Franchise,
		})
	}
	if err != nil {
		return err
	}
	existing.Year = sc.Year
	existing.ExternalID = sc.ExternalID
	existing.Franchise = sc.Franchise
	return s.store.UpdateHub(ctx, existing)
}

// inhaleEdition reattaches an edition sidecar to its asset by content
// hash, restoring canonicals and any user locks missing from the claim
// log. Returns false when no asset matches.
func (s *Scanner) inhaleEdition(ctx context.Context, sc *EditionSidecar) (bool, error) {
	asset, err := s.store.GetAssetByHash(ctx, sc.ContentHash)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	now := time.Now()
	var canonicals []*types.CanonicalValue
	addCanonical := func(key, value string) {
		if value == "" {
			return
		}
		canonicals = append(canonicals, &types.CanonicalValue{
			EntityID:     asset.ID,
			EntityType:   types.EntityMediaAsset,
			Key:          key,
			Value:        value,
			Confidence:   1.0,
			LastScoredAt: now,
		})
	}
	addCanonical(types.KeyTitle, sc.Title)
	addCanonical(types.KeyAuthor, sc.Author)
	addCanonical(types.KeyMediaType, sc.MediaType)
	addCanonical(types.KeyISBN, sc.ISBN)
	addCanonical(types.KeyASIN, sc.ASIN)
	if err := s.store.UpsertCanonicals(ctx, canonicals); err != nil {
		return false, err
	}

	if len(sc.Claims) > 0 {
		existing, err := s.store.GetClaimsByEntity(ctx, asset.ID)
		if err != nil {
			return false, err
		}
		present := make(map[string]bool)
		for _, c := range existing {
			if c.IsUserLocked {
				present[c.Key+"\x00"+types.NormalizeValue(c.Value)] = true
			}
		}
		var missing []*types.MetadataClaim
		for _, lc := range sc.Claims {
			if present[lc.Key+"\x00"+types.NormalizeValue(lc.Value)] {
				continue
			}
			lockedAt := now
			if t, err := types.ParseTime(lc.LockedAt); err == nil {
				lockedAt = t
			}
			missing = append(missing, &types.MetadataClaim{
				EntityID:     asset.ID,
				EntityType:   types.EntityMediaAsset,
				ProviderID:   "user",
				Key:          lc.Key,
				Value:        lc.Value,
				Confidence:   1.0,
				ClaimedAt:    lockedAt,
				IsUserLocked: true,
			})
		}
		if len(missing) > 0 {
			if err := s.store.InsertClaims(ctx, missing); err != nil {
				return false, err
			}
		}
	}
	return true, nil
}
