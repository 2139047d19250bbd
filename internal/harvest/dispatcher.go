package harvest

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tanaste/tanaste/internal/config"
	"github.com/tanaste/tanaste/internal/debug"
	"github.com/tanaste/tanaste/internal/events"
	"github.com/tanaste/tanaste/internal/scoring"
	"github.com/tanaste/tanaste/internal/storage"
	"github.com/tanaste/tanaste/internal/types"
)

// maxInFlight caps concurrent harvests across all providers.
const maxInFlight = 3

// Dispatcher pulls requests off the queue and runs the first-success-wins
// provider loop under a global permit count. One reader goroutine feeds up
// to maxInFlight workers.
type Dispatcher struct {
	queue     *Queue
	store     storage.Store
	manifest  *config.Manifest
	publisher events.Publisher
	gates     *Gates
	providers []Provider

	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewDispatcher wires the dispatcher. Provider order is the dispatch
// order and stays stable for the dispatcher's lifetime.
func NewDispatcher(queue *Queue, store storage.Store, manifest *config.Manifest, publisher events.Publisher, gates *Gates, providers ...Provider) *Dispatcher {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if gates == nil {
		gates = NewGates()
	}
	return &Dispatcher{
		queue:     queue,
		store:     store,
		manifest:  manifest,
		publisher: publisher,
		gates:     gates,
		providers: providers,
		sem:       semaphore.NewWeighted(maxInFlight),
	}
}

// Start launches the reader goroutine. Stop shuts it down.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(1)
	go d.readLoop(ctx)
}

// Stop cancels the reader, waits for in-flight harvests to drain, and
// returns. Safe to call once after Start.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	// Drain the permits so a late worker cannot outlive Stop.
	if err := d.sem.Acquire(context.Background(), maxInFlight); err == nil {
		d.sem.Release(maxInFlight)
	}
}

func (d *Dispatcher) readLoop(ctx context.Context) {
	defer d.wg.Done()
	for {
		req, err := d.queue.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, ErrQueueClosed) {
				debug.Logf("harvest: dequeue: %v\n", err)
			}
			return
		}
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			defer d.sem.Release(1)
			d.dispatch(ctx, req)
		}()
	}
}

// dispatch runs the provider loop for one request: skip providers that
// cannot handle the media or entity type, throttle, fetch, and stop at the
// first provider returning any claims.
func (d *Dispatcher) dispatch(ctx context.Context, req *Request) {
	for _, p := range d.providers {
		if !p.CanHandleMedia(req.MediaType) || !p.CanHandleEntity(req.EntityType) {
			continue
		}
		baseURL := d.manifest.EndpointFor(p.Name())
		if baseURL == "" {
			debug.Logf("harvest: no endpoint configured for provider %s\n", p.Name())
			continue
		}
		if err := d.gates.Wait(ctx, p.Name()); err != nil {
			return
		}
		claims := p.Fetch(ctx, req, baseURL)
		if len(claims) == 0 {
			continue
		}
		if err := d.apply(ctx, req, p, claims); err != nil {
			debug.Logf("harvest: apply %s claims for %s: %v\n", p.Name(), req.EntityID, err)
		}
		return
	}
	debug.Logf("harvest: no provider produced claims for %s\n", req.EntityID)
}

// apply persists the fetched claims, re-scores the entity over its full
// claim history with the current weights, upserts the canonicals, and
// publishes the harvest events.
func (d *Dispatcher) apply(ctx context.Context, req *Request, p Provider, fetched []Claim) error {
	now := time.Now()
	rows := make([]*types.MetadataClaim, 0, len(fetched))
	changed := make([]string, 0, len(fetched))
	for _, c := range fetched {
		rows = append(rows, &types.MetadataClaim{
			EntityID:   req.EntityID,
			EntityType: req.EntityType,
			ProviderID: p.ProviderID(),
			Key:        c.Key,
			Value:      c.Value,
			Confidence: c.Confidence,
			ClaimedAt:  now,
		})
		changed = append(changed, c.Key)
	}
	if err := d.store.InsertClaims(ctx, rows); err != nil {
		return err
	}

	all, err := d.store.GetClaimsByEntity(ctx, req.EntityID)
	if err != nil {
		return err
	}
	engine := scoring.NewEngine(scoring.Config{
		AutoLinkThreshold:     d.manifest.Scoring.AutoLinkThreshold,
		ConflictThreshold:     d.manifest.Scoring.ConflictThreshold,
		ConflictEpsilon:       d.manifest.Scoring.ConflictEpsilon,
		StaleClaimDecayDays:   d.manifest.Scoring.StaleClaimDecayDays,
		StaleClaimDecayFactor: d.manifest.Scoring.StaleClaimDecayFactor,
	})
	weights, err := d.currentWeights(ctx)
	if err != nil {
		return err
	}
	result := engine.ScoreEntity(all, weights)
	if err := d.store.UpsertCanonicals(ctx, result.Canonicals(req.EntityID, req.EntityType, now)); err != nil {
		return err
	}

	d.publisher.Publish(ctx, events.MetadataHarvested, events.HarvestedPayload{
		EntityID:    req.EntityID,
		Provider:    p.Name(),
		ChangedKeys: changed,
	})

	if req.EntityType == types.EntityPerson {
		return d.enrichPerson(ctx, req, p, fetched)
	}
	return nil
}

// enrichPerson copies identity claims into the person row and stamps
// enriched-at so the person service stops re-enqueueing them.
func (d *Dispatcher) enrichPerson(ctx context.Context, req *Request, p Provider, fetched []Claim) error {
	var externalID, portraitURL, biography string
	for _, c := range fetched {
		switch c.Key {
		case types.KeyExternalID:
			externalID = c.Value
		case types.KeyPortraitURL:
			portraitURL = c.Value
		case types.KeyBiography:
			biography = c.Value
		}
	}
	if externalID == "" && portraitURL == "" && biography == "" {
		return nil
	}
	if err := d.store.UpdatePersonEnrichment(ctx, req.EntityID, externalID, portraitURL, biography); err != nil {
		return err
	}
	name := req.Hint("name")
	if person, err := d.store.GetPerson(ctx, req.EntityID); err == nil {
		name = person.Name
	}
	d.publisher.Publish(ctx, events.PersonEnriched, events.PersonEnrichedPayload{
		PersonID: req.EntityID,
		Name:     name,
		Provider: p.Name(),
	})
	return nil
}

// currentWeights merges the manifest's provider weights with any
// database-side overrides; the database wins per provider.
func (d *Dispatcher) currentWeights(ctx context.Context) (scoring.Weights, error) {
	global := d.manifest.ProviderWeights()
	field := d.manifest.ProviderFieldWeights()
	if _, ok := global[types.LocalProcessorID]; !ok {
		global[types.LocalProcessorID] = 1.0
	}

	dbGlobal, dbField, err := d.store.GetProviderWeights(ctx)
	if err != nil {
		return scoring.Weights{}, err
	}
	for id, w := range dbGlobal {
		global[id] = w
	}
	for id, fw := range dbField {
		field[id] = fw
	}
	return scoring.Weights{Global: global, Field: field}, nil
}
