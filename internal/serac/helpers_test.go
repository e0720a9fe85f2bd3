package serac_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"serac-go/internal/database"
	"serac-go/internal/model"
	"serac-go/internal/serac"
	"serac-go/internal/testutil"
	"serac-go/internal/vault"
)

const root = "/home/user/photos"

var epoch = time.Date(2024, 7, 6, 11, 46, 54, 0, time.UTC)

type testEnv struct {
	db      *database.SQLiteDatabase
	fsmgr   *testutil.MockFilesystemManager
	staging serac.StagingArea
	vault   *vault.MemoryVault
	clock   *testutil.StubClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fsmgr := testutil.NewMockFilesystemManager()
	return &testEnv{
		db:      testutil.NewTestDatabase(t),
		fsmgr:   fsmgr,
		staging: testutil.NewTestStagingArea(fsmgr),
		vault:   testutil.NewTestVault(),
		clock:   testutil.NewStubClock(epoch),
	}
}

// service builds a Service over the env. v overrides the destination when set.
func (e *testEnv) service(v serac.Vault) *serac.Service {
	if v == nil {
		v = e.vault
	}
	return serac.NewService(e.db, e.staging, v, e.fsmgr, serac.NewNopLogger(), e.clock, serac.ServiceOptions{HashWorkers: 4})
}

func (e *testEnv) addFile(name, content string) {
	e.fsmgr.AddFile(root+"/"+name, []byte(content))
}

func (e *testEnv) backup(t *testing.T, threshold int64) *serac.BackupResult {
	t.Helper()
	result, err := e.service(nil).Backup(context.Background(), root, threshold)
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	return result
}

// manifest reads and decodes a published manifest.
func (e *testEnv) manifest(t *testing.T, id model.ChunkID) *model.Manifest {
	t.Helper()
	var buf bytes.Buffer
	if err := e.vault.Get(context.Background(), serac.ManifestKey(id), &buf); err != nil {
		t.Fatalf("manifest %s not published: %v", id, err)
	}
	m, err := model.DecodeManifest(id, buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeManifest(%s) error = %v", id, err)
	}
	return m
}

// seedChunk publishes a chunk directly to v, as an earlier run would have.
func seedChunk(t *testing.T, v serac.Vault, id model.ChunkID, records ...*model.FileRecord) {
	t.Helper()
	ctx := context.Background()
	body, err := model.EncodeManifest(&model.Manifest{ChunkID: id, Entries: records})
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Put(ctx, serac.ArchiveKey(id), bytes.NewReader(nil), 0, serac.StorageClassDeepArchive); err != nil {
		t.Fatal(err)
	}
	if err := v.Put(ctx, serac.ManifestKey(id), bytes.NewReader(body), int64(len(body)), serac.StorageClassStandard); err != nil {
		t.Fatal(err)
	}
}

func seedObject(t *testing.T, v serac.Vault, key, content string, class serac.StorageClass) {
	t.Helper()
	if err := v.Put(context.Background(), key, bytes.NewReader([]byte(content)), int64(len(content)), class); err != nil {
		t.Fatal(err)
	}
}

func record(name, content string, modified time.Time) *model.FileRecord {
	return &model.FileRecord{
		Name:     name,
		Size:     int64(len(content)),
		Modified: modified,
		Digest:   testutil.SHA256Hex([]byte(content)),
	}
}

func entryNames(m *model.Manifest) []string {
	names := make([]string, len(m.Entries))
	for i, e := range m.Entries {
		names[i] = e.Name
	}
	return names
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
