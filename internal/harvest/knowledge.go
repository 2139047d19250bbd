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

// commonsFilePathTemplate synthesises a portrait URL from an image
// filename held in the knowledge graph.
const commonsFilePathTemplate = "https://commons.wikimedia.org/wiki/Special:FilePath/%s?width=400"

// portraitProperty is the knowledge-graph property holding a subject's
// image filename.
const portraitProperty = "P18"

// KnowledgeGraphProvider enriches persons from an open knowledge graph in
// two steps: an entity search by name, then an entity fetch for the
// description and portrait image.
type KnowledgeGraphProvider struct {
	factory *ClientFactory
}

// NewKnowledgeGraphProvider creates the adapter; the graph endpoint is
// unthrottled.
func NewKnowledgeGraphProvider(factory *ClientFactory, gates *Gates) *KnowledgeGraphProvider {
	return &KnowledgeGraphProvider{factory: factory}
}

func (p *KnowledgeGraphProvider) Name() string       { return "knowledge-graph" }
func (p *KnowledgeGraphProvider) ProviderID() string { return "provider.knowledge_graph" }
func (p *KnowledgeGraphProvider) Domain() Domain     { return DomainUniversal }

func (p *KnowledgeGraphProvider) CapabilityTags() []string {
	return []string{"external_id", "biography", "portrait_url"}
}

func (p *KnowledgeGraphProvider) CanHandleMedia(types.MediaType) bool { return true }

func (p *KnowledgeGraphProvider) CanHandleEntity(et types.EntityType) bool {
	return et == types.EntityPerson
}

type graphSearchResponse struct {
	Search []struct {
		ID string `json:"id"`
	} `json:"search"`
}

type graphStatement struct {
	Mainsnak struct {
		Datavalue struct {
			Value json.RawMessage `json:"value"`
		} `json:"datavalue"`
	} `json:"mainsnak"`
}

type graphEntity struct {
	Descriptions map[string]struct {
		Value string `json:"value"`
	} `json:"descriptions"`
	Claims map[string][]graphStatement `json:"claims"`
}

type graphGetResponse struct {
	Entities map[string]graphEntity `json:"entities"`
}

// Fetch searches the graph by the person's name and emits external id,
// biography, and portrait URL claims at full confidence. Both steps fail
// soft.
func (p *KnowledgeGraphProvider) Fetch(ctx context.Context, req *Request, baseURL string) []Claim {
	name := strings.TrimSpace(req.Hint("name"))
	if name == "" {
		return nil
	}

	id := p.searchEntity(ctx, baseURL, name)
	if id == "" {
		return nil
	}
	entity, ok := p.getEntity(ctx, baseURL, id)
	if !ok {
		return nil
	}

	claims := []Claim{{Key: types.KeyExternalID, Value: id, Confidence: 1.0}}
	if desc, ok := entity.Descriptions["en"]; ok && desc.Value != "" {
		claims = append(claims, Claim{Key: types.KeyBiography, Value: desc.Value, Confidence: 1.0})
	}
	if portrait := portraitURL(entity.Claims); portrait != "" {
		claims = append(claims, Claim{Key: types.KeyPortraitURL, Value: portrait, Confidence: 1.0})
	}
	return claims
}

func (p *KnowledgeGraphProvider) searchEntity(ctx context.Context, baseURL, name string) string {
	endpoint := fmt.Sprintf(
		"%s/w/api.php?action=wbsearchentities&search=%s&language=en&format=json&limit=1",
		strings.TrimRight(baseURL, "/"), url.QueryEscape(name))
	var parsed graphSearchResponse
	if !p.getJSON(ctx, endpoint, &parsed) || len(parsed.Search) == 0 {
		return ""
	}
	return parsed.Search[0].ID
}

func (p *KnowledgeGraphProvider) getEntity(ctx context.Context, baseURL, id string) (graphEntity, bool) {
	endpoint := fmt.Sprintf(
		"%s/w/api.php?action=wbgetentities&ids=%s&props=descriptions%%7Cclaims&format=json",
		strings.TrimRight(baseURL, "/"), url.QueryEscape(id))
	var parsed graphGetResponse
	if !p.getJSON(ctx, endpoint, &parsed) {
		return graphEntity{}, false
	}
	entity, found := parsed.Entities[id]
	return entity, found
}

func (p *KnowledgeGraphProvider) getJSON(ctx context.Context, endpoint string, out interface{}) bool {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := p.factory.ClientFor(p.Name()).Do(httpReq)
	if err != nil {
		debug.Logf("harvest: knowledge-graph: %v\n", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		debug.Logf("harvest: knowledge-graph: parse: %v\n", err)
		return false
	}
	return true
}

// portraitURL extracts the image filename from the portrait property and
// substitutes it into the Commons file-path template, spaces replaced with
// underscores before escaping.
func portraitURL(claims map[string][]graphStatement) string {
	entries, ok := claims[portraitProperty]
	if !ok || len(entries) == 0 {
		return ""
	}
	var filename string
	if err := json.Unmarshal(entries[0].Mainsnak.Datavalue.Value, &filename); err != nil || filename == "" {
		return ""
	}
	filename = strings.ReplaceAll(filename, " ", "_")
	return fmt.Sprintf(commonsFilePathTemplate, url.PathEscape(filename))
}
