package sidecar

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tanaste/tanaste/internal/storage"
	"github.com/tanaste/tanaste/internal/storage/sqlite"
	"github.com/tanaste/tanaste/internal/types"
)

func newScanStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := sqlite.New(context.Background(), ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func writeHubDir(t *testing.T, root, name string, sc *HubSidecar) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := WriteHub(dir, sc); err != nil {
		t.Fatal(err)
	}
}

func TestScanCreatesHubFromSidecar(t *testing.T) {
	store := newScanStore(t)
	root := t.TempDir()
	ctx := context.Background()

	writeHubDir(t, root, "The Hobbit (1937)", &HubSidecar{
		DisplayName:   "The Hobbit",
		Year:          "1937",
		Franchise:     "Middle-earth",
		LastOrganized: types.FormatTime(time.Now()),
	})

	s := NewScanner(store)
	summary, err := s.Scan(ctx, root)
	if err != nil {
		t.Fatal(err)
	}
	if summary.HubsUpserted != 1 || summary.Errors != 0 {
		t.Fatalf("summary = %+v", summary)
	}

	hub, err := store.FindHubByName(ctx, "The Hobbit")
	if err != nil {
		t.Fatal(err)
	}
	if hub.Year != "1937" || hub.Franchise != "Middle-earth" {
		t.Errorf("hub = %+v", hub)
	}
}

func TestScanIsIdempotentAndXMLWins(t *testing.T) {
	store := newScanStore(t)
	root := t.TempDir()
	ctx := context.Background()

	// Pre-existing row with stale fields; the sidecar is authoritative.
	if err := store.CreateHub(ctx, &types.Hub{DisplayName: "Dune", Year: "1963"}); err != nil {
		t.Fatal(err)
	}
	writeHubDir(t, root, "Dune (1965)", &HubSidecar{
		DisplayName:   "Dune",
		Year:          "1965",
		ExternalID:    "Q165713",
		LastOrganized: types.FormatTime(time.Now()),
	})

	s := NewScanner(store)
	for i := 0; i < 2; i++ {
		if _, err := s.Scan(ctx, root); err != nil {
			t.Fatal(err)
		}
	}

	hub, err := store.FindHubByName(ctx, "Dune")
	if err != nil {
		t.Fatal(err)
	}
	if hub.Year != "1965" || hub.ExternalID != "Q165713" {
		t.Errorf("hub = %+v, want the sidecar fields", hub)
	}
}

func TestScanSkipsUnmatchedEditionSilently(t *testing.T) {
	store := newScanStore(t)
	root := t.TempDir()

	err := WriteEdition(filepath.Join(root, "Nowhere Book"), &EditionSidecar{
		Title:       "Nowhere Book",
		ContentHash: "no-such-hash",
	})
	if err != nil {
		t.Fatal(err)
	}

	s := NewScanner(store)
	summary, err := s.Scan(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	// Unknown hash: not an error, not an upsert. Ingestion must run first.
	if summary.EditionsUpserted != 0 || summary.Errors != 0 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestScanRestoresCanonicalsAndUserLocks(t *testing.T) {
	store := newScanStore(t)
	root := t.TempDir()
	ctx := context.Background()

	// The asset hangs off a real hub/work/edition chain; its edition id is
	// a foreign key.
	hub := &types.Hub{DisplayName: "The Hobbit"}
	if err := store.CreateHub(ctx, hub); err != nil {
		t.Fatal(err)
	}
	work := &types.Work{HubID: &hub.ID, Title: "The Hobbit", MediaType: types.MediaEbook}
	if err := store.CreateWork(ctx, work); err != nil {
		t.Fatal(err)
	}
	edition := &types.Edition{WorkID: work.ID, FormatLabel: "Standard"}
	if err := store.CreateEdition(ctx, edition); err != nil {
		t.Fatal(err)
	}
	asset := &types.MediaAsset{
		EditionID:   edition.ID,
		ContentHash: "hobbit-hash",
		PathRoot:    "/library/hobbit.epub",
		MediaType:   types.MediaEbook,
		Format:      types.FormatEpub,
	}
	if inserted, err := store.InsertAsset(ctx, asset); err != nil || !inserted {
		t.Fatalf("fixture asset: inserted=%v err=%v", inserted, err)
	}

	lockedAt := time.Now().Add(-24 * time.Hour)
	err := WriteEdition(filepath.Join(root, "Epub - Standard"), &EditionSidecar{
		Title:       "The Hobbit",
		Author:      "J.R.R. Tolkien",
		MediaType:   "ebook",
		ContentHash: "hobbit-hash",
		Claims: []LockedClaim{
			{Key: types.KeyTitle, Value: "The Hobbit", LockedAt: types.FormatTime(lockedAt)},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	s := NewScanner(store)
	summary, err := s.Scan(ctx, root)
	if err != nil {
		t.Fatal(err)
	}
	if summary.EditionsUpserted != 1 {
		t.Fatalf("summary = %+v", summary)
	}

	canonicals, err := store.GetCanonicalsByEntity(ctx, asset.ID)
	if err != nil {
		t.Fatal(err)
	}
	byKey := make(map[string]string)
	for _, v := range canonicals {
		byKey[v.Key] = v.Value
	}
	if byKey[types.KeyTitle] != "The Hobbit" || byKey[types.KeyAuthor] != "J.R.R. Tolkien" {
		t.Errorf("canonicals = %v", byKey)
	}

	claims, err := store.GetClaimsByEntity(ctx, asset.ID)
	if err != nil {
		t.Fatal(err)
	}
	locks := 0
	for _, c := range claims {
		if c.IsUserLocked {
			locks++
		}
	}
	if locks != 1 {
		t.Fatalf("user locks = %d, want 1", locks)
	}

	// A second inhale must not duplicate the lock.
	if _, err := s.Scan(ctx, root); err != nil {
		t.Fatal(err)
	}
	claims, err = store.GetClaimsByEntity(ctx, asset.ID)
	if err != nil {
		t.Fatal(err)
	}
	locks = 0
	for _, c := range claims {
		if c.IsUserLocked {
			locks++
		}
	}
	if locks != 1 {
		t.Errorf("user locks after re-scan = %d, want 1", locks)
	}
}
