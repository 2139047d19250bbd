package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tanaste/tanaste/internal/storage"
	"github.com/tanaste/tanaste/internal/types"
)

// newTestStore opens an in-memory store. In-memory databases share a
// cache per process, so these tests must not run in parallel and every
// store is closed before the next one opens.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := New(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// seedEdition creates the hub, work, and edition rows an asset insert
// needs to satisfy the schema's foreign keys.
func seedEdition(t *testing.T, store *SQLiteStore, name string) string {
	t.Helper()
	ctx := context.Background()
	hub := &types.Hub{DisplayName: name}
	if err := store.CreateHub(ctx, hub); err != nil {
		t.Fatal(err)
	}
	work := &types.Work{HubID: &hub.ID, Title: name, MediaType: types.MediaEbook}
	if err := store.CreateWork(ctx, work); err != nil {
		t.Fatal(err)
	}
	edition := &types.Edition{WorkID: work.ID, FormatLabel: "Standard"}
	if err := store.CreateEdition(ctx, edition); err != nil {
		t.Fatal(err)
	}
	return edition.ID
}

// seedAsset inserts an asset under a fresh edition graph and returns its
// id.
func seedAsset(t *testing.T, store *SQLiteStore, name, hash string) string {
	t.Helper()
	ctx := context.Background()
	asset := &types.MediaAsset{
		EditionID:   seedEdition(t, store, name),
		ContentHash: hash,
		PathRoot:    "/library/" + name + ".epub",
		MediaType:   types.MediaEbook,
		Format:      types.FormatEpub,
	}
	inserted, err := store.InsertAsset(ctx, asset)
	if err != nil {
		t.Fatal(err)
	}
	if !inserted {
		t.Fatalf("fixture asset %s not inserted", name)
	}
	return asset.ID
}

func claim(entityID, provider, key, value string, confidence float64) *types.MetadataClaim {
	return &types.MetadataClaim{
		EntityID:   entityID,
		EntityType: types.EntityEdition,
		ProviderID: provider,
		Key:        key,
		Value:      value,
		Confidence: confidence,
	}
}

func TestClaimsAppendOnlyAndOrdered(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	claims := []*types.MetadataClaim{
		claim("ed1", "local.processor", types.KeyTitle, "Draft Title", 0.6),
		claim("ed1", "ebook-search", types.KeyTitle, "Real Title", 0.8),
		claim("ed1", "ebook-search", types.KeyAuthor, "Someone", 0.8),
	}
	for i, c := range claims {
		c.ClaimedAt = base.Add(time.Duration(i) * time.Minute)
	}
	if err := store.InsertClaims(ctx, claims); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetClaimsByEntity(ctx, "ed1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d claims, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].ClaimedAt.Before(got[i-1].ClaimedAt) {
			t.Errorf("claims out of claimed_at order at index %d", i)
		}
	}

	// Later inserts only ever grow the log.
	before, err := store.CountClaims(ctx)
	if err != nil {
		t.Fatal(err)
	}
	err = store.InsertClaims(ctx, []*types.MetadataClaim{
		claim("ed1", "user", types.KeyTitle, "Locked Title", 1.0),
	})
	if err != nil {
		t.Fatal(err)
	}
	after, err := store.CountClaims(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if after != before+1 {
		t.Errorf("count went %d -> %d, want +1", before, after)
	}
}

func TestInsertClaimsRejectsInvalid(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	bad := claim("", "p", types.KeyTitle, "x", 0.5)
	good := claim("ed1", "p", types.KeyTitle, "x", 0.5)
	if err := store.InsertClaims(ctx, []*types.MetadataClaim{good, bad}); err == nil {
		t.Fatal("expected validation error")
	}

	// The batch is atomic: the valid claim must not have landed either.
	n, err := store.CountClaims(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("count = %d after failed batch, want 0", n)
	}
}

func TestInsertAssetDuplicateHashIsNoOp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &types.MediaAsset{
		EditionID:   seedEdition(t, store, "Duplicate A"),
		ContentHash: "abc123",
		PathRoot:    "/drop/a.epub",
		FileSize:    10,
		MediaType:   types.MediaEbook,
		Format:      types.FormatEpub,
	}
	inserted, err := store.InsertAsset(ctx, first)
	if err != nil {
		t.Fatal(err)
	}
	if !inserted {
		t.Fatal("first insert reported not-inserted")
	}

	second := &types.MediaAsset{
		EditionID:   seedEdition(t, store, "Duplicate B"),
		ContentHash: "abc123",
		PathRoot:    "/drop/copy.epub",
		FileSize:    10,
		MediaType:   types.MediaEbook,
		Format:      types.FormatEpub,
	}
	inserted, err = store.InsertAsset(ctx, second)
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Error("duplicate hash reported inserted")
	}

	got, err := store.GetAssetByHash(ctx, "abc123")
	if err != nil {
		t.Fatal(err)
	}
	if got.PathRoot != "/drop/a.epub" {
		t.Errorf("winner path = %q, want the first insert", got.PathRoot)
	}
}

func TestInsertAssetRequiresEdition(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// OR IGNORE covers the hash uniqueness race, not referential
	// integrity; a dangling edition id must still fail.
	_, err := store.InsertAsset(ctx, &types.MediaAsset{
		EditionID:   "no-such-edition",
		ContentHash: "dangling",
		PathRoot:    "/drop/dangling.epub",
		MediaType:   types.MediaEbook,
		Format:      types.FormatEpub,
	})
	if err == nil {
		t.Fatal("insert with an unknown edition must fail")
	}
}

func TestInsertAssetConcurrentRace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	editionID := seedEdition(t, store, "Raced")

	const racers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inserted, err := store.InsertAsset(ctx, &types.MediaAsset{
				EditionID:   editionID,
				ContentHash: "racedhash",
				PathRoot:    fmt.Sprintf("/drop/copy-%d.epub", i),
				MediaType:   types.MediaEbook,
				Format:      types.FormatEpub,
			})
			if err != nil {
				t.Errorf("racer %d: %v", i, err)
				return
			}
			if inserted {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("winners = %d, want exactly 1", wins)
	}
}

func TestUpdateAssetStatusAndPath(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := &types.MediaAsset{
		EditionID:   seedEdition(t, store, "Tracked"),
		ContentHash: "h1",
		PathRoot:    "/drop/a.epub",
		MediaType:   types.MediaEbook,
		Format:      types.FormatEpub,
	}
	if _, err := store.InsertAsset(ctx, a); err != nil {
		t.Fatal(err)
	}

	if err := store.UpdateAssetStatus(ctx, a.ID, types.AssetOrphaned); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateAssetPath(ctx, a.ID, "/library/a.epub"); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetAssetByPathRoot(ctx, "/library/a.epub")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != types.AssetOrphaned {
		t.Errorf("status = %s", got.Status)
	}
	if got.ContentHash != "h1" {
		t.Error("hash changed across a path update")
	}

	if err := store.UpdateAssetStatus(ctx, "missing", types.AssetNormal); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCanonicalUpsertReplacesByKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	write := func(value string, confidence float64, conflicted bool) {
		t.Helper()
		err := store.UpsertCanonicals(ctx, []*types.CanonicalValue{{
			EntityID:     "ed1",
			EntityType:   types.EntityEdition,
			Key:          types.KeyTitle,
			Value:        value,
			Confidence:   confidence,
			IsConflicted: conflicted,
		}})
		if err != nil {
			t.Fatal(err)
		}
	}

	write("First", 0.7, false)
	write("Second", 0.9, true)

	got, err := store.GetCanonicalsByEntity(ctx, "ed1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d rows, want 1 per (entity, key)", len(got))
	}
	if got[0].Value != "Second" || !got[0].IsConflicted {
		t.Errorf("canonical = %+v", got[0])
	}
}

func TestGetConflicted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.UpsertCanonicals(ctx, []*types.CanonicalValue{
		{EntityID: "ed1", EntityType: types.EntityEdition, Key: types.KeyTitle, Value: "Clean", Confidence: 0.9},
		{EntityID: "ed2", EntityType: types.EntityEdition, Key: types.KeyAuthor, Value: "Disputed", Confidence: 0.5, IsConflicted: true},
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := store.GetConflicted(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].EntityID != "ed2" {
		t.Errorf("conflicted = %+v", got)
	}
}

func TestHubCRUDAndFindByName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	hub := &types.Hub{DisplayName: "The Hobbit", Year: "1937"}
	if err := store.CreateHub(ctx, hub); err != nil {
		t.Fatal(err)
	}

	found, err := store.FindHubByName(ctx, "the hobbit")
	if err != nil {
		t.Fatal(err)
	}
	if found.ID != hub.ID {
		t.Error("case-insensitive lookup missed the hub")
	}

	hub.Franchise = "Middle-earth"
	if err := store.UpdateHub(ctx, hub); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetHub(ctx, hub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Franchise != "Middle-earth" {
		t.Errorf("franchise = %q", got.Franchise)
	}

	if _, err := store.FindHubByName(ctx, "absent"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteHubReassignsWorks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	hub := &types.Hub{DisplayName: "Doomed"}
	if err := store.CreateHub(ctx, hub); err != nil {
		t.Fatal(err)
	}
	work := &types.Work{HubID: &hub.ID, Title: "Orphan Candidate", MediaType: types.MediaEbook}
	if err := store.CreateWork(ctx, work); err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteHub(ctx, hub.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := store.GetHub(ctx, hub.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("hub still present: %v", err)
	}

	sentinel, err := store.FindHubByName(ctx, types.UnassignedHubName)
	if err != nil {
		t.Fatal(err)
	}
	moved, err := store.GetWork(ctx, work.ID)
	if err != nil {
		t.Fatal(err)
	}
	if moved.HubID == nil || *moved.HubID != sentinel.ID {
		t.Errorf("work hub = %v, want the sentinel", moved.HubID)
	}

	// The sentinel itself is protected.
	if err := store.DeleteHub(ctx, sentinel.ID); err == nil {
		t.Error("deleting the sentinel hub must fail")
	}
}

func TestFindWork(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	hub := &types.Hub{DisplayName: "Dune"}
	if err := store.CreateHub(ctx, hub); err != nil {
		t.Fatal(err)
	}
	work := &types.Work{HubID: &hub.ID, Title: "Dune", MediaType: types.MediaEbook}
	if err := store.CreateWork(ctx, work); err != nil {
		t.Fatal(err)
	}

	found, err := store.FindWork(ctx, hub.ID, "DUNE", types.MediaEbook)
	if err != nil {
		t.Fatal(err)
	}
	if found.ID != work.ID {
		t.Error("case-insensitive title lookup missed the work")
	}

	// Same title under a different media type is a distinct work.
	if _, err := store.FindWork(ctx, hub.ID, "Dune", types.MediaAudiobook); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPersonFindCreateLink(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := &types.Person{Name: "Frank Herbert", Role: types.RoleAuthor}
	if err := store.CreatePerson(ctx, p); err != nil {
		t.Fatal(err)
	}

	found, err := store.FindPerson(ctx, "frank herbert", types.RoleAuthor)
	if err != nil {
		t.Fatal(err)
	}
	if found.ID != p.ID {
		t.Error("case-insensitive person lookup missed")
	}
	if found.EnrichedAt != nil {
		t.Error("fresh person already enriched")
	}

	// Same name under a different role is a different person.
	if _, err := store.FindPerson(ctx, "Frank Herbert", types.RoleNarrator); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	// Linking twice leaves a single row.
	assetID := seedAsset(t, store, "Dune", "dune-hash")
	for i := 0; i < 2; i++ {
		if err := store.LinkPersonToAsset(ctx, assetID, p.ID, types.RoleAuthor); err != nil {
			t.Fatal(err)
		}
	}
	links, err := store.GetLinksForAsset(ctx, assetID)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 1 {
		t.Errorf("links = %d, want 1", len(links))
	}
}

func TestUpdatePersonEnrichment(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := &types.Person{Name: "Frank Herbert", Role: types.RoleAuthor, Biography: "existing bio"}
	if err := store.CreatePerson(ctx, p); err != nil {
		t.Fatal(err)
	}

	// Empty arguments must not clobber existing fields.
	if err := store.UpdatePersonEnrichment(ctx, p.ID, "Q101243", "https://img/portrait.jpg", ""); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetPerson(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ExternalID != "Q101243" || got.PortraitURL != "https://img/portrait.jpg" {
		t.Errorf("enrichment fields = %+v", got)
	}
	if got.Biography != "existing bio" {
		t.Errorf("biography clobbered: %q", got.Biography)
	}
	if got.EnrichedAt == nil {
		t.Error("enriched_at not stamped")
	}

	if err := store.UpdatePersonEnrichment(ctx, "missing", "x", "", ""); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestProviderRegistryAndWeights(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertProvider(ctx, "provider.ebook_search", "ebook-search", "ebook", []string{"cover", "description"}); err != nil {
		t.Fatal(err)
	}
	// Re-registering the same id updates in place.
	if err := store.UpsertProvider(ctx, "provider.ebook_search", "ebook-search", "ebook", []string{"cover"}); err != nil {
		t.Fatal(err)
	}

	if err := store.SetProviderConfig(ctx, "ebook-search", true, 0.8, map[string]float64{"cover": 0.95}); err != nil {
		t.Fatal(err)
	}
	if err := store.SetProviderConfig(ctx, "turned-off", false, 0.9, nil); err != nil {
		t.Fatal(err)
	}

	weights, fieldWeights, err := store.GetProviderWeights(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if weights["ebook-search"] != 0.8 {
		t.Errorf("weight = %v, want 0.8", weights["ebook-search"])
	}
	if _, ok := weights["turned-off"]; ok {
		t.Error("disabled provider leaked into weights")
	}
	if fieldWeights["ebook-search"]["cover"] != 0.95 {
		t.Errorf("field weight = %v, want 0.95", fieldWeights["ebook-search"]["cover"])
	}
}

func TestAPIKeyIssueAndVerify(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	plaintext, key, err := store.CreateAPIKey(ctx, "dashboard", types.ProfileCurator)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(plaintext, "tnk_") {
		t.Errorf("plaintext %q missing prefix", plaintext)
	}
	if strings.Contains(key.Hash, plaintext) {
		t.Error("plaintext stored verbatim in the hash")
	}

	verified, err := store.VerifyAPIKey(ctx, plaintext)
	if err != nil {
		t.Fatal(err)
	}
	if verified.ID != key.ID || verified.Role != types.ProfileCurator {
		t.Errorf("verified = %+v", verified)
	}

	if _, err := store.VerifyAPIKey(ctx, "tnk_wrong"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestProfileGuards(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	owner, err := store.EnsureOwnerProfile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if owner.Role != types.ProfileAdministrator {
		t.Errorf("owner role = %s", owner.Role)
	}

	// Idempotent: a second call returns the same profile.
	again, err := store.EnsureOwnerProfile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != owner.ID {
		t.Error("EnsureOwnerProfile created a duplicate")
	}

	if err := store.DeleteProfile(ctx, owner.ID); !errors.Is(err, storage.ErrProtectedProfile) {
		t.Errorf("err = %v, want ErrProtectedProfile", err)
	}

	second, err := store.CreateProfile(ctx, "Backup Admin", types.ProfileAdministrator)
	if err != nil {
		t.Fatal(err)
	}
	// Two admins exist; removing one is fine.
	if err := store.DeleteProfile(ctx, second.ID); err != nil {
		t.Fatal(err)
	}

	// Owner is now the last administrator, protected twice over.
	consumer, err := store.CreateProfile(ctx, "Kid", types.ProfileConsumer)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteProfile(ctx, consumer.ID); err != nil {
		t.Fatal(err)
	}

	profiles, err := store.ListProfiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 1 || profiles[0].DisplayName != types.OwnerProfileName {
		t.Errorf("profiles = %+v", profiles)
	}
}

func TestLastAdministratorGuard(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	admin, err := store.CreateProfile(ctx, "Solo Admin", types.ProfileAdministrator)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteProfile(ctx, admin.ID); !errors.Is(err, storage.ErrLastAdministrator) {
		t.Errorf("err = %v, want ErrLastAdministrator", err)
	}
}

func TestUserState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SetUserState(ctx, "p1", "dashboard.layout", "grid"); err != nil {
		t.Fatal(err)
	}
	if err := store.SetUserState(ctx, "p1", "dashboard.layout", "list"); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetUserState(ctx, "p1", "dashboard.layout")
	if err != nil {
		t.Fatal(err)
	}
	if got != "list" {
		t.Errorf("state = %q, want the latest write", got)
	}

	if _, err := store.GetUserState(ctx, "p1", "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRunInTransactionRollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		hub := &types.Hub{DisplayName: "Ghost"}
		if err := tx.CreateHub(ctx, hub); err != nil {
			return err
		}
		if err := tx.InsertClaims(ctx, []*types.MetadataClaim{
			claim("ed1", "local.processor", types.KeyTitle, "Ghost", 0.6),
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the callback error", err)
	}

	if _, err := store.FindHubByName(ctx, "Ghost"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("hub survived a rolled-back transaction")
	}
	n, err := store.CountClaims(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("claims = %d after rollback, want 0", n)
	}
}

func TestRunInTransactionCommitsFullGraph(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var assetID string
	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		hub := &types.Hub{DisplayName: "The Hobbit", Year: "1937"}
		if err := tx.CreateHub(ctx, hub); err != nil {
			return err
		}
		work := &types.Work{HubID: &hub.ID, Title: "The Hobbit", MediaType: types.MediaEbook}
		if err := tx.CreateWork(ctx, work); err != nil {
			return err
		}
		edition := &types.Edition{WorkID: work.ID, FormatLabel: "Standard"}
		if err := tx.CreateEdition(ctx, edition); err != nil {
			return err
		}
		asset := &types.MediaAsset{
			EditionID:   edition.ID,
			ContentHash: "hobbit-hash",
			PathRoot:    "/drop/hobbit.epub",
			MediaType:   types.MediaEbook,
			Format:      types.FormatEpub,
		}
		inserted, err := tx.InsertAsset(ctx, asset)
		if err != nil {
			return err
		}
		if !inserted {
			return errors.New("asset not inserted")
		}
		assetID = asset.ID
		return tx.AppendTransactionLog(ctx, "ingest", asset.ID, asset.PathRoot)
	})
	if err != nil {
		t.Fatal(err)
	}

	asset, err := store.GetAssetByHash(ctx, "hobbit-hash")
	if err != nil {
		t.Fatal(err)
	}
	if asset.ID != assetID {
		t.Error("committed asset mismatch")
	}
	edition, err := store.GetEdition(ctx, asset.EditionID)
	if err != nil {
		t.Fatal(err)
	}
	work, err := store.GetWork(ctx, edition.WorkID)
	if err != nil {
		t.Fatal(err)
	}
	if work.Title != "The Hobbit" {
		t.Errorf("work title = %q", work.Title)
	}
}
