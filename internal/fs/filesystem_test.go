package fs

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"serac-go/internal/serac"
)

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func scanAll(t *testing.T, m *OSFilesystemManager, root string) ([]*serac.LocalFileState, []error) {
	t.Helper()
	var files []*serac.LocalFileState
	var errs []error
	for f, err := range m.Scan(root) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		files = append(files, f)
	}
	return files, errs
}

func names(files []*serac.LocalFileState) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Name
	}
	return out
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

func TestOSFilesystemManager_Scan(t *testing.T) {
	t.Run("yields regular files in walk order", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "b.txt", "bb")
		writeFile(t, root, "a/z.jpg", "zzz")
		writeFile(t, root, "a/c/d.jpg", "d")
		writeFile(t, root, "c.txt", "")

		files, errs := scanAll(t, NewOSFilesystemManager(nil), root)
		if len(errs) != 0 {
			t.Fatalf("unexpected errors: %v", errs)
		}

		want := []string{"a/c/d.jpg", "a/z.jpg", "b.txt", "c.txt"}
		if got := names(files); !equalStrings(got, want) {
			t.Errorf("names = %v, want %v", got, want)
		}
		if files[1].Size != 3 {
			t.Errorf("Size = %d, want 3", files[1].Size)
		}
		if files[1].Path() != filepath.Join(root, "a", "z.jpg") {
			t.Errorf("Path() = %q", files[1].Path())
		}
	})

	t.Run("records modification time", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "photo.jpg", "x")
		mtime := time.Date(2024, 7, 6, 11, 46, 54, 123456000, time.UTC)
		if err := os.Chtimes(filepath.Join(root, "photo.jpg"), mtime, mtime); err != nil {
			t.Fatal(err)
		}

		files, _ := scanAll(t, NewOSFilesystemManager(nil), root)
		if len(files) != 1 {
			t.Fatalf("got %d files, want 1", len(files))
		}
		if !files[0].Modified.Equal(mtime) {
			t.Errorf("Modified = %v, want %v", files[0].Modified, mtime)
		}
	})

	t.Run("reports symlinks without following them", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "real/file.txt", "content")
		if err := os.Symlink("real/file.txt", filepath.Join(root, "link.txt")); err != nil {
			t.Fatal(err)
		}
		if err := os.Symlink("real", filepath.Join(root, "linkdir")); err != nil {
			t.Fatal(err)
		}

		m := NewOSFilesystemManager(nil)
		files, errs := scanAll(t, m, root)
		if len(errs) != 0 {
			t.Fatalf("unexpected errors: %v", errs)
		}

		want := []string{"link.txt", "linkdir", "real/file.txt"}
		if got := names(files); !equalStrings(got, want) {
			t.Fatalf("names = %v, want %v", got, want)
		}
		if !files[0].IsSymlink() || !files[1].IsSymlink() {
			t.Error("links should be reported as symlinks")
		}
		if files[0].Size != int64(len("real/file.txt")) {
			t.Errorf("link Size = %d, want length of target", files[0].Size)
		}

		target, err := m.Readlink(files[0])
		if err != nil {
			t.Fatalf("Readlink() error = %v", err)
		}
		if target != "real/file.txt" {
			t.Errorf("Readlink() = %q, want real/file.txt", target)
		}
		if _, err := m.Open(files[0]); err == nil {
			t.Error("Open() on a symlink should fail")
		}
	})

	t.Run("applies ignore patterns", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "keep.jpg", "k")
		writeFile(t, root, "skip.tmp", "s")
		writeFile(t, root, "cache/blob", "c")
		writeFile(t, root, "raw/x.cr2", "r")
		writeFile(t, root, IgnoreFileName, "cache/\n")

		files, _ := scanAll(t, NewOSFilesystemManager([]string{"*.tmp", "raw/*.cr2"}), root)

		want := []string{"keep.jpg"}
		if got := names(files); !equalStrings(got, want) {
			t.Errorf("names = %v, want %v", got, want)
		}
	})

	t.Run("fails when root is not a directory", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "file", "x")

		_, errs := scanAll(t, NewOSFilesystemManager(nil), filepath.Join(root, "file"))
		if len(errs) != 1 {
			t.Fatalf("got %d errors, want 1", len(errs))
		}
		if errors.Is(errs[0], serac.ErrLocalIO) {
			t.Error("a bad root must not be reported as a skippable file")
		}
	})

	t.Run("fails when root does not exist", func(t *testing.T) {
		_, errs := scanAll(t, NewOSFilesystemManager(nil), filepath.Join(t.TempDir(), "missing"))
		if len(errs) != 1 {
			t.Fatalf("got %d errors, want 1", len(errs))
		}
	})

	t.Run("stops when the consumer stops", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "a", "1")
		writeFile(t, root, "b", "2")
		writeFile(t, root, "c", "3")

		count := 0
		for range NewOSFilesystemManager(nil).Scan(root) {
			count++
			if count == 2 {
				break
			}
		}
		if count != 2 {
			t.Errorf("count = %d, want 2", count)
		}
	})

	t.Run("restartable", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "a", "1")
		m := NewOSFilesystemManager(nil)

		first, _ := scanAll(t, m, root)
		second, _ := scanAll(t, m, root)
		if !equalStrings(names(first), names(second)) {
			t.Errorf("second scan %v differs from first %v", names(second), names(first))
		}
	})
}

func TestOSFilesystemManager_OpenLstat(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "doc.txt", "hello")

	m := NewOSFilesystemManager(nil)
	files, _ := scanAll(t, m, root)
	if len(files) != 1 {
		t.Fatalf("got %d files, want 1", len(files))
	}

	r, err := m.Open(files[0])
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		t.Fatalf("reading: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("content = %q, want hello", data)
	}

	writeFile(t, root, "doc.txt", "hello, world")
	info, err := m.Lstat(files[0])
	if err != nil {
		t.Fatalf("Lstat() error = %v", err)
	}
	if info.Size() != 12 {
		t.Errorf("Lstat().Size() = %d, want fresh size 12", info.Size())
	}
}
