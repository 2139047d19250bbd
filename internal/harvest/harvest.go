// Package harvest implements asynchronous metadata enrichment: a bounded
// drop-oldest request queue, a permit-bounded dispatcher, per-provider
// throttle gates, and the external provider adapters. Harvesting is never
// on the ingestion critical path.
package harvest

import (
	"context"

	"github.com/tanaste/tanaste/internal/types"
)

// Request asks the dispatcher to enrich one entity. Hints carry whatever
// the enqueuer already knows (title, author, narrator, asin, isbn for
// assets; name, role for persons) so providers can build queries without
// touching the database.
type Request struct {
	EntityType types.EntityType
	EntityID   string
	MediaType  types.MediaType
	Hints      map[string]string
}

// Hint returns the named hint or "".
func (r *Request) Hint(key string) string {
	if r.Hints == nil {
		return ""
	}
	return r.Hints[key]
}

// Domain declares the slice of the catalogue a provider understands.
type Domain string

const (
	DomainEbook     Domain = "ebook"
	DomainAudiobook Domain = "audiobook"
	DomainUniversal Domain = "universal"
)

// Claim is one statement returned by a provider: a field, a value, and how
// sure the provider is.
type Claim struct {
	Key        string
	Value      string
	Confidence float64
}

// Provider is one external metadata source. Fetch must never fail loudly:
// on any network or parse problem it returns an empty list and the
// dispatcher moves on to the next provider. Context cancellation is
// propagated into the HTTP call.
type Provider interface {
	Name() string
	ProviderID() string
	Domain() Domain
	CapabilityTags() []string
	CanHandleMedia(mt types.MediaType) bool
	CanHandleEntity(et types.EntityType) bool
	Fetch(ctx context.Context, req *Request, baseURL string) []Claim
}
