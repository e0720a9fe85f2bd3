package vault

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"serac-go/internal/serac"
)

func TestNewFileSystemVault(t *testing.T) {
	t.Run("creates root directory", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "vault")

		v, err := NewFileSystemVault(root)
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}
		if _, err := os.Stat(root); err != nil {
			t.Errorf("root not created: %v", err)
		}
		if err := v.ValidateSetup(context.Background()); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}
	})

	t.Run("works with existing directory", func(t *testing.T) {
		if _, err := NewFileSystemVault(t.TempDir()); err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}
	})
}

func TestFileSystemVault_Put(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		data    string
		size    int64
		wantErr bool
	}{
		{name: "store manifest", key: "db/20240706-114654-000001.json", data: "{}", size: 2},
		{name: "nested prefix created", key: "data/20240706-114654-000001.tar", data: "tar", size: 3},
		{name: "size mismatch", key: "db/x.json", data: "hello", size: 100, wantErr: true},
		{name: "key escaping root", key: "../outside", data: "x", size: 1, wantErr: true},
		{name: "absolute key", key: "/etc/passwd", data: "x", size: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			v, err := NewFileSystemVault(root)
			if err != nil {
				t.Fatal(err)
			}

			err = v.Put(context.Background(), tt.key, strings.NewReader(tt.data), tt.size, serac.StorageClassStandard)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Put() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				objs, _ := v.List(context.Background(), "")
				if len(objs) != 0 {
					t.Errorf("failed Put left objects behind: %+v", objs)
				}
				return
			}

			got, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(tt.key)))
			if err != nil {
				t.Fatalf("reading stored file: %v", err)
			}
			if string(got) != tt.data {
				t.Errorf("stored = %q, want %q", got, tt.data)
			}
		})
	}
}

func TestFileSystemVault_PutRefusesOverwrite(t *testing.T) {
	ctx := context.Background()
	v, err := NewFileSystemVault(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if err := v.Put(ctx, "db/a.json", strings.NewReader("one"), 3, ""); err != nil {
		t.Fatalf("first Put() error = %v", err)
	}
	err = v.Put(ctx, "db/a.json", strings.NewReader("two"), 3, "")
	if !errors.Is(err, serac.ErrObjectExists) {
		t.Fatalf("second Put() error = %v, want ErrObjectExists", err)
	}

	var buf bytes.Buffer
	if err := v.Get(ctx, "db/a.json", &buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "one" {
		t.Errorf("content = %q, want original", buf.String())
	}
}

func TestFileSystemVault_Get(t *testing.T) {
	ctx := context.Background()
	v, err := NewFileSystemVault(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	t.Run("missing key", func(t *testing.T) {
		var buf bytes.Buffer
		if err := v.Get(ctx, "db/missing.json", &buf); !errors.Is(err, serac.ErrObjectNotFound) {
			t.Errorf("Get() error = %v, want ErrObjectNotFound", err)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		if err := v.Put(ctx, "reports/r.csv", strings.NewReader("a,b"), 3, ""); err != nil {
			t.Fatal(err)
		}
		var buf bytes.Buffer
		if err := v.Get(ctx, "reports/r.csv", &buf); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if buf.String() != "a,b" {
			t.Errorf("Get() = %q", buf.String())
		}
	})
}

func TestFileSystemVault_List(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	v, err := NewFileSystemVault(root)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"db/b.json", "data/b.tar", "db/a.json", "reports/x.csv"} {
		if err := v.Put(ctx, key, strings.NewReader(key), int64(len(key)), ""); err != nil {
			t.Fatal(err)
		}
	}
	// Leftover of an interrupted Put.
	if err := os.WriteFile(filepath.Join(root, "db", ".tmp-123"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	objs, err := v.List(ctx, "db/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(objs) != 2 || objs[0].Key != "db/a.json" || objs[1].Key != "db/b.json" {
		t.Fatalf("List(db/) = %+v", objs)
	}
	if objs[0].Size != int64(len("db/a.json")) {
		t.Errorf("Size = %d", objs[0].Size)
	}
	if objs[0].StorageClass != "" {
		t.Errorf("StorageClass = %q, want empty", objs[0].StorageClass)
	}

	all, err := v.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Errorf("List(\"\") returned %d objects, want 4", len(all))
	}
}

func TestFileSystemVault_ValidateSetup(t *testing.T) {
	root := t.TempDir()
	v, err := NewFileSystemVault(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(root); err != nil {
		t.Fatal(err)
	}
	if err := v.ValidateSetup(context.Background()); err == nil {
		t.Error("ValidateSetup() should fail when root is gone")
	}
}
