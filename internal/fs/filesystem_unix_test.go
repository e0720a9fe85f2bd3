//go:build unix

package fs

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"serac-go/internal/serac"
)

func TestOSFilesystemManager_Scan_Unix(t *testing.T) {
	t.Run("skips named pipes", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "a.txt", "a")
		if err := syscall.Mkfifo(filepath.Join(root, "pipe"), 0644); err != nil {
			t.Skipf("mkfifo not supported: %v", err)
		}

		files, errs := scanAll(t, NewOSFilesystemManager(nil), root)
		if len(errs) != 0 {
			t.Fatalf("unexpected errors: %v", errs)
		}
		if got := names(files); !equalStrings(got, []string{"a.txt"}) {
			t.Errorf("names = %v, want [a.txt]", got)
		}
	})

	t.Run("unreadable directory is a local I/O error", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("permissions are not enforced for root")
		}
		root := t.TempDir()
		writeFile(t, root, "a.txt", "a")
		writeFile(t, root, "locked/secret", "s")
		writeFile(t, root, "z.txt", "z")
		locked := filepath.Join(root, "locked")
		if err := os.Chmod(locked, 0); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { os.Chmod(locked, 0755) })

		files, errs := scanAll(t, NewOSFilesystemManager(nil), root)
		if len(errs) != 1 {
			t.Fatalf("got %d errors, want 1: %v", len(errs), errs)
		}
		if !errors.Is(errs[0], serac.ErrLocalIO) {
			t.Errorf("error = %v, want ErrLocalIO", errs[0])
		}
		if got := names(files); !equalStrings(got, []string{"a.txt", "z.txt"}) {
			t.Errorf("names = %v, want [a.txt z.txt]", got)
		}
	})
}
