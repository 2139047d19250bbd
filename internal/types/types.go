// Package types defines core data structures for the tanaste media library.
package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimeLayout is the canonical textual form for persisted timestamps.
// Fixed-width nanoseconds keep the column lexically sortable, which the
// claim log relies on for re-scoring order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// NewID returns a fresh opaque 128-bit identifier.
func NewID() string {
	return uuid.NewString()
}

// FormatTime renders t in the canonical persisted form (UTC, fixed width).
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a timestamp in the canonical persisted form.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

// MediaType classifies what kind of media an asset carries.
type MediaType string

const (
	MediaEbook     MediaType = "ebook"
	MediaAudiobook MediaType = "audiobook"
	MediaComic     MediaType = "comic"
	MediaVideo     MediaType = "video"
	MediaUnknown   MediaType = "unknown"
)

// Category returns the coarse library bucket for a media type.
func (m MediaType) Category() string {
	switch m {
	case MediaEbook:
		return "Books"
	case MediaComic:
		return "Comics"
	case MediaVideo:
		return "Videos"
	case MediaAudiobook:
		return "Audio"
	default:
		return "Other"
	}
}

// Format identifies the detected container format of a file.
type Format string

const (
	FormatEpub    Format = "Epub"
	FormatPdf     Format = "Pdf"
	FormatCbz     Format = "Cbz"
	FormatCbr     Format = "Cbr"
	FormatM4b     Format = "M4b"
	FormatMp3     Format = "Mp3"
	FormatMkv     Format = "Mkv"
	FormatMp4     Format = "Mp4"
	FormatUnknown Format = "Unknown"
)

// MediaType maps a container format to its media type.
func (f Format) MediaType() MediaType {
	switch f {
	case FormatEpub, FormatPdf:
		return MediaEbook
	case FormatCbz, FormatCbr:
		return MediaComic
	case FormatM4b, FormatMp3:
		return MediaAudiobook
	case FormatMkv, FormatMp4:
		return MediaVideo
	default:
		return MediaUnknown
	}
}

// FormatForExtension maps a file extension (without dot, any case) to a
// detected format.
func FormatForExtension(ext string) Format {
	switch strings.ToLower(ext) {
	case "epub":
		return FormatEpub
	case "pdf":
		return FormatPdf
	case "cbz":
		return FormatCbz
	case "cbr":
		return FormatCbr
	case "m4b":
		return FormatM4b
	case "mp3":
		return FormatMp3
	case "mkv":
		return FormatMkv
	case "mp4", "m4v":
		return FormatMp4
	default:
		return FormatUnknown
	}
}

// AssetStatus is the lifecycle state of a media asset row.
type AssetStatus string

const (
	AssetNormal     AssetStatus = "normal"
	AssetConflicted AssetStatus = "conflicted"
	AssetOrphaned   AssetStatus = "orphaned"
)

// EntityType tags the polymorphic entity_id columns in the claim and
// canonical tables.
type EntityType string

const (
	EntityHub        EntityType = "hub"
	EntityWork       EntityType = "work"
	EntityEdition    EntityType = "edition"
	EntityMediaAsset EntityType = "media_asset"
	EntityPerson     EntityType = "person"
)

// PersonRole is the relationship a person has to an asset.
type PersonRole string

const (
	RoleAuthor   PersonRole = "author"
	RoleNarrator PersonRole = "narrator"
	RoleDirector PersonRole = "director"
)

// ProfileRole is an access level for a dashboard profile.
type ProfileRole string

const (
	ProfileAdministrator ProfileRole = "administrator"
	ProfileCurator       ProfileRole = "curator"
	ProfileConsumer      ProfileRole = "consumer"
)

// Well-known claim keys. Providers are free to emit others; these are the
// keys the organiser, sidecars, and providers agree on.
const (
	KeyTitle          = "title"
	KeyAuthor         = "author"
	KeyNarrator       = "narrator"
	KeyYear           = "year"
	KeySeries         = "series"
	KeySeriesPosition = "series_position"
	KeyPublisher      = "publisher"
	KeyDescription    = "description"
	KeyRating         = "rating"
	KeyCover          = "cover"
	KeyISBN           = "isbn"
	KeyASIN           = "asin"
	KeyEdition        = "edition"
	KeyMediaType      = "media_type"
	KeyExternalID     = "external_id"
	KeyBiography      = "biography"
	KeyPortraitURL    = "portrait_url"
)

// LocalProcessorID is the provider id tagged onto claims extracted by the
// local per-format processors.
const LocalProcessorID = "local.processor"

// Hub is the top-level unit grouping every edition of one story.
type Hub struct {
	ID          string    `json:"id"`
	UniverseID  *string   `json:"universe_id,omitempty"`
	DisplayName string    `json:"display_name"`
	Year        string    `json:"year,omitempty"`
	ExternalID  string    `json:"external_id,omitempty"`
	Franchise   string    `json:"franchise,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// UnassignedHubName is the sentinel hub that receives works whose hub was
// deleted. It is created on demand and never deleted.
const UnassignedHubName = "Unassigned"

// Work is one title within a hub, fixed to a media type at creation.
type Work struct {
	ID        string    `json:"id"`
	HubID     *string   `json:"hub_id,omitempty"`
	Title     string    `json:"title"`
	MediaType MediaType `json:"media_type"`
	Sequence  *int      `json:"sequence,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Edition is one distinct physical version under a work.
type Edition struct {
	ID          string    `json:"id"`
	WorkID      string    `json:"work_id"`
	FormatLabel string    `json:"format_label,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// MediaAsset is one file on disk. The content hash is its permanent
// identity and survives rename and move.
type MediaAsset struct {
	ID          string      `json:"id"`
	EditionID   string      `json:"edition_id"`
	ContentHash string      `json:"content_hash"`
	PathRoot    string      `json:"path_root"`
	FileSize    int64       `json:"file_size"`
	MediaType   MediaType   `json:"media_type"`
	Format      Format      `json:"format"`
	Status      AssetStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
}

// MetadataClaim is a single statement by one provider that some field has
// some value. Claims are append-only and never deleted.
type MetadataClaim struct {
	ID           string     `json:"id"`
	EntityID     string     `json:"entity_id"`
	EntityType   EntityType `json:"entity_type"`
	ProviderID   string     `json:"provider_id"`
	Key          string     `json:"key"`
	Value        string     `json:"value"`
	Confidence   float64    `json:"confidence"`
	ClaimedAt    time.Time  `json:"claimed_at"`
	IsUserLocked bool       `json:"is_user_locked"`
}

// Validate rejects claims that would poison the log.
func (c *MetadataClaim) Validate() error {
	if c.EntityID == "" {
		return fmt.Errorf("claim: empty entity id")
	}
	if strings.TrimSpace(c.Key) == "" {
		return fmt.Errorf("claim: empty key")
	}
	if c.IsUserLocked && strings.TrimSpace(c.Value) == "" {
		return fmt.Errorf("claim: user lock requires a value")
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("claim: confidence %v out of [0,1]", c.Confidence)
	}
	return nil
}

// CanonicalValue is the current winning value for one (entity, field).
type CanonicalValue struct {
	EntityID     string     `json:"entity_id"`
	EntityType   EntityType `json:"entity_type"`
	Key          string     `json:"key"`
	Value        string     `json:"value"`
	Confidence   float64    `json:"confidence"`
	LastScoredAt time.Time  `json:"last_scored_at"`
	IsConflicted bool       `json:"is_conflicted"`
}

// Person is an author, narrator, or director referenced by assets.
type Person struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Role        PersonRole `json:"role"`
	ExternalID  string     `json:"external_id,omitempty"`
	PortraitURL string     `json:"portrait_url,omitempty"`
	Biography   string     `json:"biography,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	EnrichedAt  *time.Time `json:"enriched_at,omitempty"`
}

// PersonRef is an unresolved {role, name} reference extracted from metadata.
type PersonRef struct {
	Name string
	Role PersonRole
}

// PersonMediaLink joins a person to an asset in a role.
type PersonMediaLink struct {
	AssetID  string     `json:"asset_id"`
	PersonID string     `json:"person_id"`
	Role     PersonRole `json:"role"`
}

// APIKey holds only the salted hash of an issued key; the plaintext is
// returned once at creation and never persisted.
type APIKey struct {
	ID        string      `json:"id"`
	Label     string      `json:"label"`
	Role      ProfileRole `json:"role"`
	Salt      string      `json:"-"`
	Hash      string      `json:"-"`
	CreatedAt time.Time   `json:"created_at"`
}

// Profile is a dashboard identity.
type Profile struct {
	ID          string      `json:"id"`
	DisplayName string      `json:"display_name"`
	Role        ProfileRole `json:"role"`
	CreatedAt   time.Time   `json:"created_at"`
}

// OwnerProfileName is the seed profile created on first boot. It cannot be
// deleted.
const OwnerProfileName = "Owner"

// NormalizeValue is the claim-value normalisation used everywhere claim
// values are compared: trim plus case fold. Exact match after
// normalisation is the single equality strategy for a deployment.
func NormalizeValue(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
