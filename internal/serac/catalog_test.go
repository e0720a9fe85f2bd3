package serac_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"serac-go/internal/model"
	"serac-go/internal/serac"
	"serac-go/internal/testutil"
)

func TestCatalog(t *testing.T) {
	older := &model.Manifest{ChunkID: "20240706-114654-000001", Entries: []*model.FileRecord{
		record("a.jpg", "a1", epoch),
		record("b.jpg", "b1", epoch),
	}}
	newer := &model.Manifest{ChunkID: "20240707-080000-000000", Entries: []*model.FileRecord{
		record("a.jpg", "a2-longer", epoch.Add(time.Hour)),
	}}

	t.Run("latest chunk wins regardless of argument order", func(t *testing.T) {
		for _, c := range []*serac.Catalog{serac.NewCatalog(older, newer), serac.NewCatalog(newer, older)} {
			e := c.Lookup("a.jpg")
			if e == nil || e.ChunkID != newer.ChunkID || e.Record.Size != 9 {
				t.Errorf("Lookup(a.jpg) = %+v, want record from %s", e, newer.ChunkID)
			}
			if e := c.Lookup("b.jpg"); e == nil || e.ChunkID != older.ChunkID {
				t.Errorf("Lookup(b.jpg) = %+v", e)
			}
		}
	})

	t.Run("unknown name", func(t *testing.T) {
		if e := serac.NewCatalog(older).Lookup("c.jpg"); e != nil {
			t.Errorf("Lookup(c.jpg) = %+v, want nil", e)
		}
	})

	t.Run("history is newest first", func(t *testing.T) {
		h := serac.NewCatalog(older, newer).History("a.jpg")
		if len(h) != 2 {
			t.Fatalf("len(History) = %d, want 2", len(h))
		}
		if h[0].ChunkID != newer.ChunkID || h[1].ChunkID != older.ChunkID {
			t.Errorf("History order = %s, %s", h[0].ChunkID, h[1].ChunkID)
		}
	})

	t.Run("names and len", func(t *testing.T) {
		c := serac.NewCatalog(newer, older)
		if got := c.Names(); !equalStrings(got, []string{"a.jpg", "b.jpg"}) {
			t.Errorf("Names() = %v", got)
		}
		if c.Len() != 2 {
			t.Errorf("Len() = %d, want 2", c.Len())
		}
		ms := c.Manifests()
		if len(ms) != 2 || ms[0].ChunkID != older.ChunkID {
			t.Errorf("Manifests() not ascending")
		}
	})

	t.Run("add in order", func(t *testing.T) {
		c := serac.NewCatalog(older)
		c.Add(newer)
		if e := c.Lookup("a.jpg"); e.ChunkID != newer.ChunkID {
			t.Errorf("Lookup(a.jpg) from %s, want %s", e.ChunkID, newer.ChunkID)
		}
	})

	t.Run("add out of order keeps latest wins", func(t *testing.T) {
		c := serac.NewCatalog(newer)
		c.Add(older)
		if e := c.Lookup("a.jpg"); e.ChunkID != newer.ChunkID {
			t.Errorf("Lookup(a.jpg) from %s, want %s", e.ChunkID, newer.ChunkID)
		}
		if h := c.History("a.jpg"); len(h) != 2 || h[0].ChunkID != newer.ChunkID {
			t.Errorf("History(a.jpg) wrong after out-of-order add")
		}
	})

	t.Run("empty", func(t *testing.T) {
		c := serac.NewCatalog()
		if c.Len() != 0 || len(c.Names()) != 0 {
			t.Error("empty catalog should have no names")
		}
	})
}

func TestService_LoadCatalog(t *testing.T) {
	ctx := context.Background()

	t.Run("fetches and caches missing manifests", func(t *testing.T) {
		env := newTestEnv(t)
		seedChunk(t, env.vault, "20240706-114654-000001", record("a.jpg", "a", epoch))
		seedChunk(t, env.vault, "20240706-114654-000002", record("b.jpg", "b", epoch))

		catalog, listing, err := env.service(nil).LoadCatalog(ctx)
		if err != nil {
			t.Fatalf("LoadCatalog() error = %v", err)
		}
		if catalog.Len() != 2 {
			t.Errorf("catalog.Len() = %d, want 2", catalog.Len())
		}
		if len(listing.Manifests) != 2 {
			t.Errorf("listing has %d manifests, want 2", len(listing.Manifests))
		}

		ids, err := env.db.ListManifestIDs()
		if err != nil {
			t.Fatal(err)
		}
		if len(ids) != 2 {
			t.Errorf("cached %d manifests, want 2", len(ids))
		}
	})

	t.Run("cached manifests are not downloaded again", func(t *testing.T) {
		env := newTestEnv(t)
		seedChunk(t, env.vault, "20240706-114654-000001", record("a.jpg", "a", epoch))
		if _, _, err := env.service(nil).LoadCatalog(ctx); err != nil {
			t.Fatal(err)
		}

		failing := testutil.NewFailingVault(env.vault)
		failing.FailGet(testutil.ErrInjected)
		catalog, _, err := env.service(failing).LoadCatalog(ctx)
		if err != nil {
			t.Fatalf("LoadCatalog() error = %v, want cache hit", err)
		}
		if catalog.Lookup("a.jpg") == nil {
			t.Error("cached manifest not merged")
		}
	})

	t.Run("cache entries missing from the destination are ignored", func(t *testing.T) {
		env := newTestEnv(t)
		seedChunk(t, env.vault, "20240706-114654-000001", record("a.jpg", "a", epoch))

		stale, err := model.EncodeManifest(&model.Manifest{
			ChunkID: "20240706-114654-000009",
			Entries: []*model.FileRecord{record("ghost.jpg", "g", epoch)},
		})
		if err != nil {
			t.Fatal(err)
		}
		if err := env.db.InsertManifest("20240706-114654-000009", stale); err != nil {
			t.Fatal(err)
		}

		catalog, _, err := env.service(nil).LoadCatalog(ctx)
		if err != nil {
			t.Fatalf("LoadCatalog() error = %v", err)
		}
		if catalog.Lookup("ghost.jpg") != nil {
			t.Error("manifest only in the cache was merged")
		}
		if catalog.Lookup("a.jpg") == nil {
			t.Error("remote manifest not merged")
		}
	})

	t.Run("accepts bare array manifests", func(t *testing.T) {
		env := newTestEnv(t)
		id := model.ChunkID("20200101-000000-000000")
		seedObject(t, env.vault, serac.ArchiveKey(id), "", serac.StorageClassDeepArchive)
		seedObject(t, env.vault, serac.ManifestKey(id),
			`[{"name": "old.jpg", "size": 1, "modified": "2020-01-01T00:00:00+00:00", "sha": "`+testutil.SHA256Hex([]byte("x"))+`"}]`,
			serac.StorageClassStandard)

		catalog, _, err := env.service(nil).LoadCatalog(ctx)
		if err != nil {
			t.Fatalf("LoadCatalog() error = %v", err)
		}
		if catalog.Lookup("old.jpg") == nil {
			t.Error("bare array manifest not merged")
		}
	})

	t.Run("corrupt manifest is not cached", func(t *testing.T) {
		env := newTestEnv(t)
		id := model.ChunkID("20240706-114654-000001")
		seedObject(t, env.vault, serac.ArchiveKey(id), "", serac.StorageClassDeepArchive)
		seedObject(t, env.vault, serac.ManifestKey(id), "{not json", serac.StorageClassStandard)

		_, _, err := env.service(nil).LoadCatalog(ctx)
		if !errors.Is(err, serac.ErrCorruptManifest) {
			t.Fatalf("LoadCatalog() error = %v, want ErrCorruptManifest", err)
		}
		if body, _ := env.db.FindManifest(id); body != nil {
			t.Error("corrupt manifest was cached")
		}
	})

	t.Run("list failure", func(t *testing.T) {
		env := newTestEnv(t)
		failing := testutil.NewFailingVault(env.vault)
		failing.FailList(testutil.ErrInjected)

		_, _, err := env.service(failing).LoadCatalog(ctx)
		if !errors.Is(err, serac.ErrRemoteUnavailable) {
			t.Errorf("LoadCatalog() error = %v, want ErrRemoteUnavailable", err)
		}
	})

	t.Run("fetch failure", func(t *testing.T) {
		env := newTestEnv(t)
		seedChunk(t, env.vault, "20240706-114654-000001", record("a.jpg", "a", epoch))
		failing := testutil.NewFailingVault(env.vault)
		failing.FailGet(testutil.ErrInjected)

		_, _, err := env.service(failing).LoadCatalog(ctx)
		if !errors.Is(err, serac.ErrRemoteUnavailable) {
			t.Errorf("LoadCatalog() error = %v, want ErrRemoteUnavailable", err)
		}
	})
}
