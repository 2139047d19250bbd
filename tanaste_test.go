package tanaste_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/tanaste/tanaste"
)

func TestOpen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "library.db")

	store, err := tanaste.Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	if store.Path() == "" {
		t.Error("expected a resolved database path")
	}
}

func TestOpenInMemory(t *testing.T) {
	store, err := tanaste.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	hub := &tanaste.Hub{DisplayName: "Smoke Test"}
	if err := store.CreateHub(context.Background(), hub); err != nil {
		t.Fatalf("CreateHub failed: %v", err)
	}
	if hub.ID == "" {
		t.Error("expected a generated hub id")
	}
}
