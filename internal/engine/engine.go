// Package engine orchestrates the ingestion pipeline: it owns the watcher
// and debounce queue, a bounded worker pool that takes each settled file
// from hash to organised shelf, and the maintenance loops around them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tanaste/tanaste/internal/config"
	"github.com/tanaste/tanaste/internal/debug"
	"github.com/tanaste/tanaste/internal/events"
	"github.com/tanaste/tanaste/internal/harvest"
	"github.com/tanaste/tanaste/internal/hashing"
	"github.com/tanaste/tanaste/internal/organizer"
	"github.com/tanaste/tanaste/internal/person"
	"github.com/tanaste/tanaste/internal/processor"
	"github.com/tanaste/tanaste/internal/scoring"
	"github.com/tanaste/tanaste/internal/sidecar"
	"github.com/tanaste/tanaste/internal/storage"
	"github.com/tanaste/tanaste/internal/types"
	"github.com/tanaste/tanaste/internal/watcher"
)

// errDuplicate aborts the ingest transaction when a concurrent worker won
// the hash race. It never escapes handleCandidate.
var errDuplicate = errors.New("engine: duplicate content hash")

// Engine is the ingestion orchestrator.
type Engine struct {
	store     storage.Store
	manifest  *config.Manifest
	registry  *processor.Registry
	organizer *organizer.Organizer
	harvestQ  *harvest.Queue
	persons   *person.Service
	publisher events.Publisher
	scorer    *scoring.Engine
	taggers   []Tagger

	watch    *watcher.Watcher
	debounce *watcher.DebounceQueue
	health   *healthChecker

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// Option configures the engine at construction.
type Option func(*Engine)

// WithTaggers registers write-back taggers, tried in order.
func WithTaggers(taggers ...Tagger) Option {
	return func(e *Engine) { e.taggers = append(e.taggers, taggers...) }
}

// WithProcessorRegistry swaps the format processor registry.
func WithProcessorRegistry(r *processor.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// New wires an engine over the store, manifest, harvest queue, and event
// publisher.
func New(store storage.Store, manifest *config.Manifest, harvestQ *harvest.Queue, publisher events.Publisher, opts ...Option) *Engine {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	// A nil *Queue must stay a nil Enqueuer, not a typed-nil interface.
	var enqueuer person.Enqueuer
	if harvestQ != nil {
		enqueuer = harvestQ
	}
	e := &Engine{
		store:     store,
		manifest:  manifest,
		registry:  processor.DefaultRegistry(),
		organizer: organizer.New(manifest.Ingestion.LibraryRoot, manifest.Ingestion.OrganizationTemplate),
		harvestQ:  harvestQ,
		persons:   person.NewService(store, enqueuer),
		publisher: publisher,
		scorer:    scoring.NewEngine(scoringConfig(manifest)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func scoringConfig(m *config.Manifest) scoring.Config {
	return scoring.Config{
		AutoLinkThreshold:     m.Scoring.AutoLinkThreshold,
		ConflictThreshold:     m.Scoring.ConflictThreshold,
		ConflictEpsilon:       m.Scoring.ConflictEpsilon,
		StaleClaimDecayDays:   m.Scoring.StaleClaimDecayDays,
		StaleClaimDecayFactor: m.Scoring.StaleClaimDecayFactor,
	}
}

// Start launches the watcher, debounce queue, worker pool, and the folder
// health loop. Stop shuts everything down in reverse order.
func (e *Engine) Start(ctx context.Context) error {
	ctx, e.cancel = context.WithCancel(ctx)

	settle := time.Duration(e.manifest.Ingestion.SettleMillis) * time.Millisecond
	e.debounce = watcher.NewDebounceQueue(settle)

	w, err := watcher.New(func(ev watcher.Event) {
		e.debounce.Offer(ev)
	})
	if err != nil {
		return fmt.Errorf("engine: watcher: %w", err)
	}
	e.watch = w
	if err := e.watch.AddDirectory(e.manifest.Ingestion.WatchDirectory, true); err != nil {
		_ = e.watch.Close()
		return fmt.Errorf("engine: watch %s: %w", e.manifest.Ingestion.WatchDirectory, err)
	}
	e.watch.Start()

	for i := 0; i < e.manifest.WorkerCount(); i++ {
		e.wg.Add(1)
		go e.workerLoop(ctx)
	}

	e.health = newHealthChecker(e.manifest, e.publisher)
	e.health.start(ctx, &e.wg)
	return nil
}

// Stop cancels workers and closes the watcher and debounce queue. Pending
// candidates already in flight finish their current step and exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	if e.watch != nil {
		_ = e.watch.Close()
	}
	if e.debounce != nil {
		e.debounce.Close()
	}
	e.wg.Wait()
}

func (e *Engine) workerLoop(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-e.debounce.Candidates():
			if !ok {
				return
			}
			e.handleCandidate(ctx, c)
		}
	}
}

// handleCandidate runs the full pipeline for one settled file. Sidecar,
// organise, and write-back failures are logged and swallowed; only
// corruption and storage failures surface as IngestionFailed.
func (e *Engine) handleCandidate(ctx context.Context, c watcher.Candidate) {
	if c.IsFailed {
		debug.Logf("engine: skipping unreadable %s: %s\n", c.Path, c.Reason)
		return
	}

	e.publisher.Publish(ctx, events.IngestionStarted, events.IngestionPayload{Path: c.Path})

	if c.Kind == watcher.Deleted || c.Kind == watcher.Renamed {
		e.orphan(ctx, c.Path)
		return
	}

	if _, err := os.Stat(c.Path); err != nil {
		debug.Logf("engine: %s vanished before ingest: %v\n", c.Path, err)
		return
	}

	hashRes, err := hashing.Compute(ctx, c.Path)
	if err != nil {
		if ctx.Err() == nil {
			e.publisher.Publish(ctx, events.IngestionFailed, events.IngestionPayload{Path: c.Path, Reason: err.Error()})
		}
		return
	}
	e.publisher.Publish(ctx, events.IngestionHashed, events.IngestionPayload{Path: c.Path, Hash: hashRes.Hex})

	if existing, err := e.store.GetAssetByHash(ctx, hashRes.Hex); err == nil {
		e.relink(ctx, existing, c.Path)
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		debug.Logf("engine: duplicate check for %s: %v\n", c.Path, err)
		return
	}

	e.publisher.Publish(ctx, events.IngestionProgress, events.ProgressPayload{Path: c.Path, Stage: "processing"})
	procRes, err := e.registry.Process(ctx, c.Path)
	if err != nil {
		e.publisher.Publish(ctx, events.IngestionFailed, events.IngestionPayload{Path: c.Path, Reason: err.Error()})
		return
	}
	if procRes.IsCorrupt {
		debug.Logf("engine: quarantining %s: %s\n", c.Path, procRes.CorruptReason)
		e.publisher.Publish(ctx, events.IngestionFailed, events.IngestionPayload{Path: c.Path, Reason: procRes.CorruptReason})
		return
	}

	format := types.Format(procRes.DetectedType)
	mediaType := format.MediaType()
	now := time.Now()

	asset := &types.MediaAsset{
		ID:          types.NewID(),
		ContentHash: hashRes.Hex,
		PathRoot:    c.Path,
		FileSize:    hashRes.FileSize,
		MediaType:   mediaType,
		Format:      format,
		Status:      types.AssetNormal,
		CreatedAt:   now,
	}

	claims := make([]*types.MetadataClaim, 0, len(procRes.Claims))
	for _, ec := range procRes.Claims {
		claims = append(claims, &types.MetadataClaim{
			EntityID:   asset.ID,
			EntityType: types.EntityMediaAsset,
			ProviderID: types.LocalProcessorID,
			Key:        ec.Key,
			Value:      ec.Value,
			Confidence: ec.Confidence,
			ClaimedAt:  now,
		})
	}

	result := e.scorer.ScoreEntity(claims, e.localWeights())
	fields := flatten(result)
	title := firstNonEmpty(fields[types.KeyTitle], strings.TrimSuffix(filepath.Base(c.Path), filepath.Ext(c.Path)))

	if err := e.persist(ctx, asset, title, fields[types.KeyYear], claims, result); err != nil {
		if errors.Is(err, errDuplicate) {
			debug.Logf("engine: %s lost the hash race, skipping\n", c.Path)
			return
		}
		e.publisher.Publish(ctx, events.IngestionFailed, events.IngestionPayload{Path: c.Path, Reason: err.Error()})
		return
	}

	e.publisher.Publish(ctx, events.IngestionCompleted, events.IngestionPayload{Path: c.Path, AssetID: asset.ID, Hash: hashRes.Hex})
	e.publisher.Publish(ctx, events.MediaAdded, events.IngestionPayload{Path: c.Path, AssetID: asset.ID, Hash: hashRes.Hex})

	e.enqueueHarvest(asset, fields)
	e.persons.EnsurePersons(ctx, asset.ID, personRefs(fields))

	if e.shouldOrganize(result) {
		e.organize(ctx, c.Path, asset, title, fields, claims, procRes.Cover)
	}
}

// relink follows a rename. The content hash is the asset's permanent
// identity, so when known content reappears while the stored row is
// orphaned or its recorded path is gone, the row is re-pointed at the new
// path instead of being dropped as a duplicate.
func (e *Engine) relink(ctx context.Context, asset *types.MediaAsset, newPath string) {
	stale := asset.Status == types.AssetOrphaned
	if !stale {
		if _, err := os.Stat(asset.PathRoot); err != nil {
			stale = true
		}
	}
	if !stale {
		debug.Logf("engine: %s already ingested (hash %s)\n", newPath, asset.ContentHash)
		return
	}

	if err := e.store.UpdateAssetPath(ctx, asset.ID, newPath); err != nil {
		debug.Logf("engine: relink path %s: %v\n", asset.ID, err)
		return
	}
	if err := e.store.UpdateAssetStatus(ctx, asset.ID, types.AssetNormal); err != nil {
		debug.Logf("engine: relink status %s: %v\n", asset.ID, err)
		return
	}
	e.publisher.Publish(ctx, events.IngestionCompleted, events.IngestionPayload{
		Path:    newPath,
		AssetID: asset.ID,
		Hash:    asset.ContentHash,
		Reason:  "relinked",
	})
}

// orphan transitions a deleted or renamed path's asset to Orphaned.
func (e *Engine) orphan(ctx context.Context, path string) {
	asset, err := e.store.GetAssetByPathRoot(ctx, path)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		debug.Logf("engine: orphan lookup %s: %v\n", path, err)
		return
	}
	if err := e.store.UpdateAssetStatus(ctx, asset.ID, types.AssetOrphaned); err != nil {
		debug.Logf("engine: orphan %s: %v\n", asset.ID, err)
		return
	}
	e.publisher.Publish(ctx, events.IngestionCompleted, events.IngestionPayload{
		Path:    path,
		AssetID: asset.ID,
		Reason:  "orphaned",
	})
}

// persist writes the hub/work/edition/asset/claims/canonicals for one
// ingested file atomically. A hash-race duplicate rolls everything back
// via errDuplicate.
func (e *Engine) persist(ctx context.Context, asset *types.MediaAsset, title, year string, claims []*types.MetadataClaim, result scoring.Result) error {
	hub, err := e.store.FindHubByName(ctx, title)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	var work *types.Work
	if hub != nil {
		work, err = e.store.FindWork(ctx, hub.ID, title, asset.MediaType)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}

	return e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if hub == nil {
			hub = &types.Hub{DisplayName: title, Year: year}
			if err := tx.CreateHub(ctx, hub); err != nil {
				return err
			}
		}
		if work == nil {
			work = &types.Work{HubID: &hub.ID, Title: title, MediaType: asset.MediaType}
			if err := tx.CreateWork(ctx, work); err != nil {
				return err
			}
		}
		edition := &types.Edition{WorkID: work.ID, FormatLabel: string(asset.Format)}
		if err := tx.CreateEdition(ctx, edition); err != nil {
			return err
		}
		asset.EditionID = edition.ID

		inserted, err := tx.InsertAsset(ctx, asset)
		if err != nil {
			return err
		}
		if !inserted {
			return errDuplicate
		}
		if err := tx.InsertClaims(ctx, claims); err != nil {
			return err
		}
		if err := tx.UpsertCanonicals(ctx, result.Canonicals(asset.ID, types.EntityMediaAsset, time.Now())); err != nil {
			return err
		}
		return tx.AppendTransactionLog(ctx, "ingest", asset.ID, asset.PathRoot)
	})
}

// localWeights seeds the first scoring pass: the local processor counts
// fully, configured providers keep their manifest weights.
func (e *Engine) localWeights() scoring.Weights {
	global := e.manifest.ProviderWeights()
	global[types.LocalProcessorID] = 1.0
	return scoring.Weights{Global: global, Field: e.manifest.ProviderFieldWeights()}
}

func (e *Engine) shouldOrganize(result scoring.Result) bool {
	if !e.manifest.Ingestion.AutoOrganize {
		return false
	}
	return result.Overall() >= e.scorer.Config().AutoLinkThreshold || result.HasUserLock()
}

func (e *Engine) enqueueHarvest(asset *types.MediaAsset, fields map[string]string) {
	if e.harvestQ == nil {
		return
	}
	e.harvestQ.Enqueue(&harvest.Request{
		EntityType: types.EntityMediaAsset,
		EntityID:   asset.ID,
		MediaType:  asset.MediaType,
		Hints: map[string]string{
			"title":    fields[types.KeyTitle],
			"author":   fields[types.KeyAuthor],
			"narrator": fields[types.KeyNarrator],
			"asin":     fields[types.KeyASIN],
			"isbn":     fields[types.KeyISBN],
		},
	})
}

// personRefs pulls author and narrator references out of the scored
// fields.
func personRefs(fields map[string]string) []types.PersonRef {
	var refs []types.PersonRef
	if author := fields[types.KeyAuthor]; author != "" {
		refs = append(refs, types.PersonRef{Name: author, Role: types.RoleAuthor})
	}
	if narrator := fields[types.KeyNarrator]; narrator != "" {
		refs = append(refs, types.PersonRef{Name: narrator, Role: types.RoleNarrator})
	}
	return refs
}

// organize moves the file into the library tree and writes the sidecars
// and cover. Every failure here is logged and swallowed; the asset is
// already persisted.
func (e *Engine) organize(ctx context.Context, sourcePath string, asset *types.MediaAsset, title string, fields map[string]string, claims []*types.MetadataClaim, cover []byte) {
	dest := e.organizer.DestinationFor(sourcePath, tokenValues(title, asset.MediaType, asset.Format, fields))
	if err := e.organizer.ExecuteMove(sourcePath, dest); err != nil {
		debug.Logf("engine: organise %s: %v\n", sourcePath, err)
		return
	}
	if err := e.store.UpdateAssetPath(ctx, asset.ID, dest); err != nil {
		debug.Logf("engine: update path %s: %v\n", asset.ID, err)
	}
	asset.PathRoot = dest

	editionDir := filepath.Dir(dest)
	hubDir := filepath.Dir(editionDir)
	now := time.Now()

	hubSC := &sidecar.HubSidecar{
		DisplayName:   title,
		Year:          fields[types.KeyYear],
		LastOrganized: types.FormatTime(now),
	}
	if hub, err := e.store.FindHubByName(ctx, title); err == nil {
		hubSC = sidecar.NewHubSidecar(hub, now)
	}
	if err := sidecar.WriteHub(hubDir, hubSC); err != nil {
		debug.Logf("engine: hub sidecar: %v\n", err)
	}

	editionSC := &sidecar.EditionSidecar{
		Title:         fields[types.KeyTitle],
		Author:        fields[types.KeyAuthor],
		MediaType:     string(asset.MediaType),
		ISBN:          fields[types.KeyISBN],
		ASIN:          fields[types.KeyASIN],
		ContentHash:   asset.ContentHash,
		Claims:        lockedClaims(claims),
		LastOrganized: types.FormatTime(now),
	}
	if err := sidecar.WriteEdition(editionDir, editionSC); err != nil {
		debug.Logf("engine: edition sidecar: %v\n", err)
	}
	if len(cover) > 0 {
		if err := sidecar.WriteCover(editionDir, cover); err != nil {
			debug.Logf("engine: cover: %v\n", err)
		}
	}

	if e.manifest.Ingestion.WriteBack {
		if t := e.taggerFor(dest); t != nil {
			if err := t.WriteTags(ctx, dest, fields, cover); err != nil {
				debug.Logf("engine: write-back via %s: %v\n", t.Name(), err)
			}
		}
	}
}

// lockedClaims projects the user-locked claims into sidecar entries.
func lockedClaims(claims []*types.MetadataClaim) []sidecar.LockedClaim {
	var out []sidecar.LockedClaim
	for _, c := range claims {
		if c.IsUserLocked {
			out = append(out, sidecar.LockedClaim{
				Key:      c.Key,
				Value:    c.Value,
				LockedAt: types.FormatTime(c.ClaimedAt),
			})
		}
	}
	return out
}

// tokenValues builds the organiser token map for one asset.
func tokenValues(title string, mediaType types.MediaType, format types.Format, fields map[string]string) organizer.TokenValues {
	return organizer.TokenValues{
		"Category": mediaType.Category(),
		"HubName":  title,
		"Year":     fields[types.KeyYear],
		"Format":   string(format),
		"Title":    title,
		"Author":   fields[types.KeyAuthor],
	}
}

// flatten projects a score result to key -> winning value.
func flatten(result scoring.Result) map[string]string {
	out := make(map[string]string, len(result.Fields))
	for k, f := range result.Fields {
		out[k] = f.Value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
