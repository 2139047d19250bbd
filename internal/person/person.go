// Package person resolves author/narrator references extracted from media
// into person records, links them to assets, and schedules enrichment.
package person

import (
	"context"
	"errors"
	"strings"

	"github.com/tanaste/tanaste/internal/debug"
	"github.com/tanaste/tanaste/internal/harvest"
	"github.com/tanaste/tanaste/internal/storage"
	"github.com/tanaste/tanaste/internal/types"
)

// Enqueuer accepts harvest requests. The harvest queue satisfies it.
type Enqueuer interface {
	Enqueue(req *harvest.Request)
}

// Service wires person resolution between the store and the harvest queue.
type Service struct {
	store storage.Store
	queue Enqueuer
}

// NewService creates the person service. A nil queue disables enrichment
// scheduling.
func NewService(store storage.Store, queue Enqueuer) *Service {
	return &Service{store: store, queue: queue}
}

// EnsurePersons resolves each reference to a person row, links it to the
// asset, and enqueues an enrichment harvest for anyone not yet enriched.
// One bad reference never blocks the rest; failures are logged and
// skipped.
func (s *Service) EnsurePersons(ctx context.Context, assetID string, refs []types.PersonRef) {
	for _, ref := range refs {
		if err := s.ensureOne(ctx, assetID, ref); err != nil {
			debug.Logf("person: %q (%s): %v\n", ref.Name, ref.Role, err)
		}
	}
}

func (s *Service) ensureOne(ctx context.Context, assetID string, ref types.PersonRef) error {
	name := strings.TrimSpace(ref.Name)
	if name == "" {
		return nil
	}

	p, err := s.store.FindPerson(ctx, name, ref.Role)
	if errors.Is(err, storage.ErrNotFound) {
		p = &types.Person{Name: name, Role: ref.Role}
		if err := s.store.CreatePerson(ctx, p); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if err := s.store.LinkPersonToAsset(ctx, assetID, p.ID, ref.Role); err != nil {
		return err
	}

	if p.EnrichedAt == nil && s.queue != nil {
		s.queue.Enqueue(&harvest.Request{
			EntityType: types.EntityPerson,
			EntityID:   p.ID,
			MediaType:  types.MediaUnknown,
			Hints: map[string]string{
				"name": p.Name,
				"role": string(p.Role),
			},
		})
	}
	return nil
}
