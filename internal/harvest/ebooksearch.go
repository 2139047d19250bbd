package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/tanaste/tanaste/internal/debug"
	"github.com/tanaste/tanaste/internal/types"
)

// EbookSearchProvider queries a catalogue search endpoint by title and
// author. It serves both ebooks and audiobooks; the entity query parameter
// selects the slice.
type EbookSearchProvider struct {
	factory *ClientFactory
}

// NewEbookSearchProvider creates the adapter and installs its throttle
// gate.
func NewEbookSearchProvider(factory *ClientFactory, gates *Gates) *EbookSearchProvider {
	p := &EbookSearchProvider{factory: factory}
	gates.Register(p.Name(), EbookSearchInterval)
	return p
}

func (p *EbookSearchProvider) Name() string       { return "ebook-search" }
func (p *EbookSearchProvider) ProviderID() string { return "provider.ebook_search" }
func (p *EbookSearchProvider) Domain() Domain     { return DomainEbook }

func (p *EbookSearchProvider) CapabilityTags() []string {
	return []string{"cover", "description", "rating", "title"}
}

func (p *EbookSearchProvider) CanHandleMedia(mt types.MediaType) bool {
	return mt == types.MediaEbook || mt == types.MediaAudiobook
}

func (p *EbookSearchProvider) CanHandleEntity(et types.EntityType) bool {
	return et == types.EntityMediaAsset
}

type ebookSearchResponse struct {
	ResultCount int `json:"resultCount"`
	Results     []struct {
		TrackName         string  `json:"trackName"`
		ArtworkURL100     string  `json:"artworkUrl100"`
		Description       string  `json:"description"`
		AverageUserRating float64 `json:"averageUserRating"`
	} `json:"results"`
}

// Fetch searches by the title hint (plus author when present) and emits
// claims from the first result. Any failure returns an empty list.
func (p *EbookSearchProvider) Fetch(ctx context.Context, req *Request, baseURL string) []Claim {
	term := strings.TrimSpace(req.Hint("title"))
	if term == "" {
		return nil
	}
	if author := strings.TrimSpace(req.Hint("author")); author != "" {
		term += " " + author
	}
	entity := "ebook"
	if req.MediaType == types.MediaAudiobook {
		entity = "audiobook"
	}

	endpoint := fmt.Sprintf("%s/search?term=%s&entity=%s&limit=5",
		strings.TrimRight(baseURL, "/"), url.QueryEscape(term), entity)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil
	}
	resp, err := p.factory.ClientFor(p.Name()).Do(httpReq)
	if err != nil {
		debug.Logf("harvest: ebook-search: %v\n", err)
		return nil
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var parsed ebookSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		debug.Logf("harvest: ebook-search: parse: %v\n", err)
		return nil
	}
	if len(parsed.Results) == 0 {
		return nil
	}
	first := parsed.Results[0]

	var claims []Claim
	if cover := upgradeArtwork(first.ArtworkURL100); cover != "" {
		claims = append(claims, Claim{Key: types.KeyCover, Value: cover, Confidence: 0.8})
	}
	if desc := stripHTML(first.Description); desc != "" {
		claims = append(claims, Claim{Key: types.KeyDescription, Value: desc, Confidence: 0.8})
	}
	if first.AverageUserRating > 0 {
		claims = append(claims, Claim{
			Key:        types.KeyRating,
			Value:      fmt.Sprintf("%.1f", first.AverageUserRating),
			Confidence: 0.8,
		})
	}
	if first.TrackName != "" {
		claims = append(claims, Claim{Key: types.KeyTitle, Value: first.TrackName, Confidence: 0.7})
	}
	return claims
}

// upgradeArtwork swaps the catalogue's 100x100 thumbnail template for the
// 600x600 variant.
func upgradeArtwork(u string) string {
	if u == "" {
		return ""
	}
	return strings.Replace(u, "100x100", "600x600", 1)
}

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// stripHTML removes markup tags and decodes entities, collapsing the
// leftover whitespace.
func stripHTML(s string) string {
	s = htmlTag.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}
