package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"serac-go/internal/serac"
)

// FileSystemVault stores a destination as plain files under a root
// directory, one file per key:
//
//	<root>/
//	  db/<chunk_id>.json
//	  data/<chunk_id>.tar
//	  reports/<timestamp>.csv
//
// Storage classes are not recorded; objects list with an empty class.
type FileSystemVault struct {
	root string
}

// NewFileSystemVault creates a filesystem vault rooted at the given path.
func NewFileSystemVault(root string) (*FileSystemVault, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create vault root: %w", err)
	}
	return &FileSystemVault{root: root}, nil
}

func (v *FileSystemVault) path(key string) (string, error) {
	clean := filepath.FromSlash(key)
	if !filepath.IsLocal(clean) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(v.root, clean), nil
}

// List returns the objects whose key starts with prefix, sorted by key.
func (v *FileSystemVault) List(ctx context.Context, prefix string) ([]serac.ObjectInfo, error) {
	var out []serac.ObjectInfo
	err := filepath.WalkDir(v.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}

		rel, err := filepath.Rel(v.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, serac.ObjectInfo{Key: key, Size: info.Size(), ModifiedAt: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing vault: %w", err)
	}
	slices.SortFunc(out, func(a, b serac.ObjectInfo) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}

// Get writes the object's content to w.
func (v *FileSystemVault) Get(ctx context.Context, key string, w io.Writer) error {
	src, err := v.path(key)
	if err != nil {
		return err
	}

	f, err := os.Open(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", serac.ErrObjectNotFound, key)
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return nil
}

// Put stores the object. The class is ignored. Existing keys are never
// overwritten, even by a concurrent writer.
func (v *FileSystemVault) Put(ctx context.Context, key string, r io.Reader, size int64, class serac.StorageClass) error {
	dest, err := v.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to a temp file in the same directory, then hard link it into
	// place: unlike rename, link fails if the destination exists.
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}

	if err := os.Link(tmpPath, dest); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", serac.ErrObjectExists, key)
		}
		return fmt.Errorf("failed to link object into place: %w", err)
	}
	return nil
}

// ValidateSetup verifies that the vault root is an accessible directory.
func (v *FileSystemVault) ValidateSetup(ctx context.Context) error {
	info, err := os.Stat(v.root)
	if err != nil {
		return fmt.Errorf("vault root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault root is not a directory: %s", v.root)
	}
	return nil
}

// Compile-time check that FileSystemVault implements serac.Vault interface
var _ serac.Vault = (*FileSystemVault)(nil)
