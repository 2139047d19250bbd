package harvest

import (
	"context"

	"github.com/tanaste/tanaste/internal/storage"
)

// DefaultProviders returns the shipped adapters in dispatch order:
// ASIN lookup first (highest-precision identity), then the catalogue
// search, then the knowledge graph for persons.
func DefaultProviders(factory *ClientFactory, gates *Gates) []Provider {
	return []Provider{
		NewASINProvider(factory, gates),
		NewEbookSearchProvider(factory, gates),
		NewKnowledgeGraphProvider(factory, gates),
	}
}

// SyncRegistry records each provider's identity and capabilities in the
// provider registry table so the dashboard can list them.
func SyncRegistry(ctx context.Context, store storage.Store, providers []Provider) error {
	for _, p := range providers {
		if err := store.UpsertProvider(ctx, p.ProviderID(), p.Name(), string(p.Domain()), p.CapabilityTags()); err != nil {
			return err
		}
	}
	return nil
}
