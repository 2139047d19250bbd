// Package events defines the named lifecycle events the core publishes to
// the broadcast channel, and the publisher seam the HTTP layer plugs into.
package events

import "context"

// Event names observable on the broadcast channel.
const (
	IngestionStarted    = "IngestionStarted"
	IngestionHashed     = "IngestionHashed"
	IngestionFailed     = "IngestionFailed"
	IngestionCompleted  = "IngestionCompleted"
	MediaAdded          = "MediaAdded"
	IngestionProgress   = "IngestionProgress"
	MetadataHarvested   = "MetadataHarvested"
	PersonEnriched      = "PersonEnriched"
	WatchFolderActive   = "WatchFolderActive"
	FolderHealthChanged = "FolderHealthChanged"
)

// Publisher broadcasts named events. Implementations must be safe for
// concurrent use; publish failures are the implementation's problem and
// must never propagate into the pipeline.
type Publisher interface {
	Publish(ctx context.Context, name string, payload interface{})
}

// IngestionPayload accompanies the Ingestion* and MediaAdded events.
type IngestionPayload struct {
	Path    string `json:"path"`
	AssetID string `json:"asset_id,omitempty"`
	Hash    string `json:"hash,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// ProgressPayload accompanies IngestionProgress.
type ProgressPayload struct {
	Path  string `json:"path"`
	Stage string `json:"stage"`
}

// HarvestedPayload accompanies MetadataHarvested.
type HarvestedPayload struct {
	EntityID    string   `json:"entity_id"`
	Provider    string   `json:"provider"`
	ChangedKeys []string `json:"changed_keys"`
}

// PersonEnrichedPayload accompanies PersonEnriched. Name carries the
// person's actual name.
type PersonEnrichedPayload struct {
	PersonID string `json:"person_id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// FolderHealthPayload accompanies WatchFolderActive and
// FolderHealthChanged.
type FolderHealthPayload struct {
	Path    string `json:"path"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, string, interface{}) {}
