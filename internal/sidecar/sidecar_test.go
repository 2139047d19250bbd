package sidecar

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tanaste/tanaste/internal/types"
)

func TestHubSidecarRoundTrip(t *testing.T) {
	dir := t.TempDir()
	hub := &types.Hub{
		DisplayName: "The Hobbit",
		Year:        "1937",
		ExternalID:  "Q74287",
		Franchise:   "Middle-earth",
	}
	if err := WriteHub(dir, NewHubSidecar(hub, time.Now())); err != nil {
		t.Fatal(err)
	}

	got, err := ReadHub(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatal(err)
	}
	if got.DisplayName != hub.DisplayName || got.Year != hub.Year ||
		got.ExternalID != hub.ExternalID || got.Franchise != hub.Franchise {
		t.Errorf("round trip = %+v", got)
	}
	if got.Version == "" {
		t.Error("version attribute missing")
	}
}

func TestEditionSidecarRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := &EditionSidecar{
		Title:       "The Hobbit",
		Author:      "J.R.R. Tolkien",
		MediaType:   "ebook",
		ISBN:        "9780261102217",
		ASIN:        "B002RI9ZQM",
		ContentHash: "abc123",
		Claims: []LockedClaim{
			{Key: "title", Value: "The Hobbit", LockedAt: types.FormatTime(time.Now())},
		},
		LastOrganized: types.FormatTime(time.Now()),
	}
	if err := WriteEdition(dir, in); err != nil {
		t.Fatal(err)
	}

	got, err := ReadEdition(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != in.Title || got.Author != in.Author ||
		got.MediaType != in.MediaType || got.ISBN != in.ISBN ||
		got.ASIN != in.ASIN || got.ContentHash != in.ContentHash {
		t.Errorf("round trip = %+v", got)
	}
	if got.CoverPath != CoverFileName {
		t.Errorf("cover path = %q, want the default", got.CoverPath)
	}
	if len(got.Claims) != 1 || got.Claims[0].Key != "title" {
		t.Errorf("claims = %+v", got.Claims)
	}
}

func TestProbeRootClassification(t *testing.T) {
	cases := map[string]rootKind{
		`<?xml version="1.0"?><tanaste-hub version="1.0"></tanaste-hub>`:         rootHub,
		`<?xml version="1.0"?><tanaste-edition version="1.0"></tanaste-edition>`: rootEdition,
		`<?xml version="1.0"?><something-else></something-else>`:                 rootUnknown,
		`not xml at all`: rootUnknown,
	}
	for doc, want := range cases {
		if got := probeRoot([]byte(doc)); got != want {
			t.Errorf("probeRoot(%q) = %d, want %d", doc, got, want)
		}
	}
}

func TestWriteCover(t *testing.T) {
	dir := t.TempDir()
	payload := []byte{0xFF, 0xD8, 0xFF}
	if err := WriteCover(dir, payload); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(dir, CoverFileName))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(payload) {
		t.Error("cover bytes mismatch")
	}
}
