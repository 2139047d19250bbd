package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tanaste/tanaste/internal/debug"
	"github.com/tanaste/tanaste/internal/types"
)

// ASINProvider looks an audiobook up by its ASIN. It cannot search; a
// request without an asin hint yields nothing.
type ASINProvider struct {
	factory *ClientFactory
}

// NewASINProvider creates the adapter and installs its 1-req/s throttle
// gate.
func NewASINProvider(factory *ClientFactory, gates *Gates) *ASINProvider {
	p := &ASINProvider{factory: factory}
	gates.Register(p.Name(), ASINInterval)
	return p
}

func (p *ASINProvider) Name() string       { return "asin-lookup" }
func (p *ASINProvider) ProviderID() string { return "provider.asin_lookup" }
func (p *ASINProvider) Domain() Domain     { return DomainAudiobook }

func (p *ASINProvider) CapabilityTags() []string {
	return []string{"narrator", "series", "series_position", "cover", "author"}
}

func (p *ASINProvider) CanHandleMedia(mt types.MediaType) bool {
	return mt == types.MediaAudiobook || mt == types.MediaEbook
}

func (p *ASINProvider) CanHandleEntity(et types.EntityType) bool {
	return et == types.EntityMediaAsset
}

type asinResponse struct {
	Title   string `json:"title"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	Narrators []struct {
		Name string `json:"name"`
	} `json:"narrators"`
	SeriesPrimary struct {
		Name     string `json:"name"`
		Position string `json:"position"`
	} `json:"seriesPrimary"`
	Image string `json:"image"`
}

// Fetch resolves {baseUrl}/books/{asin}. A 404 means the ASIN is unknown
// and returns an empty list without logging.
func (p *ASINProvider) Fetch(ctx context.Context, req *Request, baseURL string) []Claim {
	asin := strings.TrimSpace(req.Hint("asin"))
	if asin == "" {
		return nil
	}

	endpoint := fmt.Sprintf("%s/books/%s", strings.TrimRight(baseURL, "/"), url.PathEscape(asin))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil
	}
	resp, err := p.factory.ClientFor(p.Name()).Do(httpReq)
	if err != nil {
		debug.Logf("harvest: asin-lookup: %v\n", err)
		return nil
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var parsed asinResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		debug.Logf("harvest: asin-lookup: parse: %v\n", err)
		return nil
	}

	var claims []Claim
	if narrators := joinNames(len(parsed.Narrators), func(i int) string { return parsed.Narrators[i].Name }); narrators != "" {
		claims = append(claims, Claim{Key: types.KeyNarrator, Value: narrators, Confidence: 0.9})
	}
	if parsed.SeriesPrimary.Name != "" {
		claims = append(claims, Claim{Key: types.KeySeries, Value: parsed.SeriesPrimary.Name, Confidence: 0.9})
		if parsed.SeriesPrimary.Position != "" {
			claims = append(claims, Claim{Key: types.KeySeriesPosition, Value: parsed.SeriesPrimary.Position, Confidence: 0.9})
		}
	}
	if parsed.Image != "" {
		claims = append(claims, Claim{Key: types.KeyCover, Value: parsed.Image, Confidence: 0.9})
	}
	if authors := joinNames(len(parsed.Authors), func(i int) string { return parsed.Authors[i].Name }); authors != "" {
		claims = append(claims, Claim{Key: types.KeyAuthor, Value: authors, Confidence: 0.9})
	}
	return claims
}

// joinNames comma-joins non-empty names in order.
func joinNames(n int, name func(int) string) string {
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if v := strings.TrimSpace(name(i)); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}
