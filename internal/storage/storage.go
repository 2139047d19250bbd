// Package storage defines the interface for tanaste storage backends.
package storage

import (
	"context"
	"errors"

	"github.com/tanaste/tanaste/internal/types"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("storage: not found")

// ErrProtectedProfile is returned when deleting the seed Owner profile.
var ErrProtectedProfile = errors.New("storage: profile is protected")

// ErrLastAdministrator is returned when deleting the last administrator.
var ErrLastAdministrator = errors.New("storage: cannot delete last administrator")

// Transaction exposes the subset of Store operations that can run inside a
// single database transaction. The ingestion engine uses it to make the
// hub/work/edition/asset/claims/canonicals write for one file atomic.
//
// Semantics follow SQLite BEGIN IMMEDIATE: the write lock is acquired up
// front, the callback's error triggers rollback, success commits.
type Transaction interface {
	CreateHub(ctx context.Context, hub *types.Hub) error
	CreateWork(ctx context.Context, work *types.Work) error
	CreateEdition(ctx context.Context, edition *types.Edition) error
	InsertAsset(ctx context.Context, asset *types.MediaAsset) (bool, error)
	InsertClaims(ctx context.Context, claims []*types.MetadataClaim) error
	UpsertCanonicals(ctx context.Context, values []*types.CanonicalValue) error
	AppendTransactionLog(ctx context.Context, op, entityID, detail string) error
}

// Store is the single transactional connection the engine writes through.
type Store interface {
	// Claims (append-only; no update, no delete).
	InsertClaims(ctx context.Context, claims []*types.MetadataClaim) error
	GetClaimsByEntity(ctx context.Context, entityID string) ([]*types.MetadataClaim, error)
	CountClaims(ctx context.Context) (int64, error)

	// Canonical values.
	UpsertCanonicals(ctx context.Context, values []*types.CanonicalValue) error
	GetCanonicalsByEntity(ctx context.Context, entityID string) ([]*types.CanonicalValue, error)
	GetConflicted(ctx context.Context) ([]*types.CanonicalValue, error)

	// Media assets. InsertAsset reports whether a row was actually
	// inserted; a duplicate content hash is a no-op, not an error.
	InsertAsset(ctx context.Context, asset *types.MediaAsset) (bool, error)
	GetAssetByHash(ctx context.Context, hash string) (*types.MediaAsset, error)
	GetAssetByPathRoot(ctx context.Context, pathRoot string) (*types.MediaAsset, error)
	UpdateAssetStatus(ctx context.Context, id string, status types.AssetStatus) error
	UpdateAssetPath(ctx context.Context, id, pathRoot string) error

	// Hubs, works, editions.
	CreateHub(ctx context.Context, hub *types.Hub) error
	GetHub(ctx context.Context, id string) (*types.Hub, error)
	FindHubByName(ctx context.Context, displayName string) (*types.Hub, error)
	UpdateHub(ctx context.Context, hub *types.Hub) error
	DeleteHub(ctx context.Context, id string) error
	CreateWork(ctx context.Context, work *types.Work) error
	GetWork(ctx context.Context, id string) (*types.Work, error)
	FindWork(ctx context.Context, hubID, title string, mediaType types.MediaType) (*types.Work, error)
	CreateEdition(ctx context.Context, edition *types.Edition) error
	GetEdition(ctx context.Context, id string) (*types.Edition, error)

	// Persons.
	CreatePerson(ctx context.Context, person *types.Person) error
	GetPerson(ctx context.Context, id string) (*types.Person, error)
	FindPerson(ctx context.Context, name string, role types.PersonRole) (*types.Person, error)
	LinkPersonToAsset(ctx context.Context, assetID, personID string, role types.PersonRole) error
	GetLinksForAsset(ctx context.Context, assetID string) ([]*types.PersonMediaLink, error)
	UpdatePersonEnrichment(ctx context.Context, id, externalID, portraitURL, biography string) error

	// Provider registry and per-provider weight config.
	UpsertProvider(ctx context.Context, providerID, name, domain string, tags []string) error
	SetProviderConfig(ctx context.Context, name string, enabled bool, weight float64, fieldWeights map[string]float64) error
	GetProviderWeights(ctx context.Context) (map[string]float64, map[string]map[string]float64, error)

	// API keys and profiles.
	CreateAPIKey(ctx context.Context, label string, role types.ProfileRole) (plaintext string, key *types.APIKey, err error)
	VerifyAPIKey(ctx context.Context, plaintext string) (*types.APIKey, error)
	CreateProfile(ctx context.Context, displayName string, role types.ProfileRole) (*types.Profile, error)
	ListProfiles(ctx context.Context) ([]*types.Profile, error)
	DeleteProfile(ctx context.Context, id string) error
	EnsureOwnerProfile(ctx context.Context) (*types.Profile, error)

	// Per-profile dashboard state and the monotonic audit log.
	SetUserState(ctx context.Context, profileID, key, value string) error
	GetUserState(ctx context.Context, profileID, key string) (string, error)
	AppendTransactionLog(ctx context.Context, op, entityID, detail string) error

	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error
	Close() error
	Path() string
}
