package harvest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tanaste/tanaste/internal/types"
)

func claimMap(claims []Claim) map[string]string {
	out := make(map[string]string, len(claims))
	for _, c := range claims {
		out[c.Key] = c.Value
	}
	return out
}

func TestEbookSearchFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if q.Get("term") != "The Hobbit J.R.R. Tolkien" {
			t.Errorf("term = %q", q.Get("term"))
		}
		if q.Get("entity") != "ebook" || q.Get("limit") != "5" {
			t.Errorf("entity=%q limit=%q", q.Get("entity"), q.Get("limit"))
		}
		fmt.Fprint(w, `{
			"resultCount": 1,
			"results": [{
				"trackName": "The Hobbit",
				"artworkUrl100": "https://img.example/covers/100x100bb.jpg",
				"description": "<p>There and <b>back</b> again.</p>",
				"averageUserRating": 4.5
			}]
		}`)
	}))
	defer srv.Close()

	p := NewEbookSearchProvider(NewClientFactory(), NewGates())
	claims := p.Fetch(context.Background(), &Request{
		EntityType: types.EntityMediaAsset,
		MediaType:  types.MediaEbook,
		Hints:      map[string]string{"title": "The Hobbit", "author": "J.R.R. Tolkien"},
	}, srv.URL)

	got := claimMap(claims)
	if got[types.KeyCover] != "https://img.example/covers/600x600bb.jpg" {
		t.Errorf("cover = %q, want the 600x600 upgrade", got[types.KeyCover])
	}
	if got[types.KeyDescription] != "There and back again." {
		t.Errorf("description = %q, want tags stripped", got[types.KeyDescription])
	}
	if got[types.KeyRating] != "4.5" {
		t.Errorf("rating = %q", got[types.KeyRating])
	}
	if got[types.KeyTitle] != "The Hobbit" {
		t.Errorf("title = %q", got[types.KeyTitle])
	}
}

func TestEbookSearchFailsSoft(t *testing.T) {
	p := NewEbookSearchProvider(NewClientFactory(), NewGates())
	req := &Request{MediaType: types.MediaEbook, Hints: map[string]string{"title": "x"}}

	// Unreachable endpoint.
	if claims := p.Fetch(context.Background(), req, "http://127.0.0.1:1"); len(claims) != 0 {
		t.Errorf("network failure returned %d claims", len(claims))
	}

	// Garbage body.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "not json")
	}))
	defer srv.Close()
	if claims := p.Fetch(context.Background(), req, srv.URL); len(claims) != 0 {
		t.Errorf("parse failure returned %d claims", len(claims))
	}

	// No title hint means no query to make.
	if claims := p.Fetch(context.Background(), &Request{MediaType: types.MediaEbook}, srv.URL); claims != nil {
		t.Error("expected nil claims without a title hint")
	}
}

func TestASINFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/books/B002V0QK4C" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{
			"title": "Project Hail Mary",
			"authors": [{"name": "Andy Weir"}],
			"narrators": [{"name": "Ray Porter"}, {"name": "Second Voice"}],
			"seriesPrimary": {"name": "Standalone", "position": "1"},
			"image": "https://img.example/phm.jpg"
		}`)
	}))
	defer srv.Close()

	p := NewASINProvider(NewClientFactory(), NewGates())
	claims := p.Fetch(context.Background(), &Request{
		MediaType: types.MediaAudiobook,
		Hints:     map[string]string{"asin": "B002V0QK4C"},
	}, srv.URL)

	got := claimMap(claims)
	if got[types.KeyNarrator] != "Ray Porter, Second Voice" {
		t.Errorf("narrator = %q, want comma-joined names", got[types.KeyNarrator])
	}
	if got[types.KeyAuthor] != "Andy Weir" {
		t.Errorf("author = %q", got[types.KeyAuthor])
	}
	if got[types.KeySeries] != "Standalone" || got[types.KeySeriesPosition] != "1" {
		t.Errorf("series = %q pos %q", got[types.KeySeries], got[types.KeySeriesPosition])
	}
	if got[types.KeyCover] != "https://img.example/phm.jpg" {
		t.Errorf("cover = %q", got[types.KeyCover])
	}
}

func TestASINNotFoundIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	p := NewASINProvider(NewClientFactory(), NewGates())
	claims := p.Fetch(context.Background(), &Request{
		MediaType: types.MediaAudiobook,
		Hints:     map[string]string{"asin": "UNKNOWN"},
	}, srv.URL)
	if len(claims) != 0 {
		t.Errorf("404 returned %d claims, want 0", len(claims))
	}

	// No hint, no call.
	if claims := p.Fetch(context.Background(), &Request{MediaType: types.MediaAudiobook}, srv.URL); claims != nil {
		t.Error("expected nil claims without an asin hint")
	}
}

func TestKnowledgeGraphFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("action") {
		case "wbsearchentities":
			if r.URL.Query().Get("search") != "Frank Herbert" {
				t.Errorf("search = %q", r.URL.Query().Get("search"))
			}
			fmt.Fprint(w, `{"search": [{"id": "Q101243"}]}`)
		case "wbgetentities":
			if r.URL.Query().Get("ids") != "Q101243" {
				t.Errorf("ids = %q", r.URL.Query().Get("ids"))
			}
			fmt.Fprint(w, `{
				"entities": {
					"Q101243": {
						"descriptions": {"en": {"value": "American science fiction writer"}},
						"claims": {"P18": [{"mainsnak": {"datavalue": {"value": "Frank Herbert portrait.jpg"}}}]}
					}
				}
			}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewKnowledgeGraphProvider(NewClientFactory(), NewGates())
	claims := p.Fetch(context.Background(), &Request{
		EntityType: types.EntityPerson,
		MediaType:  types.MediaUnknown,
		Hints:      map[string]string{"name": "Frank Herbert", "role": "author"},
	}, srv.URL)

	got := claimMap(claims)
	if got[types.KeyExternalID] != "Q101243" {
		t.Errorf("external id = %q", got[types.KeyExternalID])
	}
	if got[types.KeyBiography] != "American science fiction writer" {
		t.Errorf("biography = %q", got[types.KeyBiography])
	}
	want := "https://commons.wikimedia.org/wiki/Special:FilePath/Frank_Herbert_portrait.jpg?width=400"
	if got[types.KeyPortraitURL] != want {
		t.Errorf("portrait = %q, want %q", got[types.KeyPortraitURL], want)
	}
	for _, c := range claims {
		if c.Confidence != 1.0 {
			t.Errorf("claim %s confidence = %v, want 1.0", c.Key, c.Confidence)
		}
	}
}

func TestKnowledgeGraphNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"search": []}`)
	}))
	defer srv.Close()

	p := NewKnowledgeGraphProvider(NewClientFactory(), NewGates())
	claims := p.Fetch(context.Background(), &Request{
		EntityType: types.EntityPerson,
		Hints:      map[string]string{"name": "Nobody At All"},
	}, srv.URL)
	if len(claims) != 0 {
		t.Errorf("no search hit returned %d claims", len(claims))
	}
}

func TestProviderCapabilities(t *testing.T) {
	factory := NewClientFactory()
	gates := NewGates()
	ebook := NewEbookSearchProvider(factory, gates)
	asin := NewASINProvider(factory, gates)
	graph := NewKnowledgeGraphProvider(factory, gates)

	if !ebook.CanHandleMedia(types.MediaEbook) || !ebook.CanHandleMedia(types.MediaAudiobook) {
		t.Error("ebook search must handle ebooks and audiobooks")
	}
	if ebook.CanHandleMedia(types.MediaVideo) {
		t.Error("ebook search must not handle video")
	}
	if ebook.CanHandleEntity(types.EntityPerson) {
		t.Error("ebook search must not handle persons")
	}
	if !asin.CanHandleEntity(types.EntityMediaAsset) {
		t.Error("asin lookup must handle assets")
	}
	if !graph.CanHandleEntity(types.EntityPerson) || graph.CanHandleEntity(types.EntityMediaAsset) {
		t.Error("knowledge graph is person-only")
	}
	if !graph.CanHandleMedia(types.MediaUnknown) {
		t.Error("knowledge graph must accept unknown media")
	}
}
