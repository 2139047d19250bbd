// Package tanaste provides a minimal public API for embedding the media
// library engine in other Go programs.
//
// Most integrations should run the tanaste daemon and read its database or
// event stream. This package exports only the essential types and the store
// constructor needed for programmatic access to the library.
package tanaste

import (
	"context"

	"github.com/tanaste/tanaste/internal/storage"
	"github.com/tanaste/tanaste/internal/storage/sqlite"
	"github.com/tanaste/tanaste/internal/types"
)

// Core types for working with the library graph
type (
	Hub            = types.Hub
	Work           = types.Work
	Edition        = types.Edition
	MediaAsset     = types.MediaAsset
	MetadataClaim  = types.MetadataClaim
	CanonicalValue = types.CanonicalValue
	Person         = types.Person
)

// Media type constants
const (
	MediaEbook     = types.MediaEbook
	MediaAudiobook = types.MediaAudiobook
	MediaComic     = types.MediaComic
	MediaVideo     = types.MediaVideo
	MediaUnknown   = types.MediaUnknown
)

// Asset lifecycle constants
const (
	AssetNormal     = types.AssetNormal
	AssetConflicted = types.AssetConflicted
	AssetOrphaned   = types.AssetOrphaned
)

// Store is the storage interface exposed to integrations.
type Store = storage.Store

// Open opens a tanaste SQLite database for programmatic access. Pass
// ":memory:" for an ephemeral in-memory library.
func Open(ctx context.Context, dbPath string) (Store, error) {
	return sqlite.New(ctx, dbPath)
}
