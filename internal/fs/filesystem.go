package fs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"slices"

	"serac-go/internal/serac"
)

// OSFilesystemManager is the real filesystem implementation of FilesystemManager.
type OSFilesystemManager struct {
	ignore []string // patterns from config, applied in addition to the root's ignore file
}

// NewOSFilesystemManager creates a filesystem manager that operates on the
// real filesystem and skips names matching ignorePatterns.
func NewOSFilesystemManager(ignorePatterns []string) *OSFilesystemManager {
	return &OSFilesystemManager{ignore: ignorePatterns}
}

// Scan walks root depth first, visiting the entries of each directory sorted
// by name. Symbolic links are reported, never followed.
func (m *OSFilesystemManager) Scan(root string) iter.Seq2[*serac.LocalFileState, error] {
	return func(yield func(*serac.LocalFileState, error) bool) {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			yield(nil, fmt.Errorf("resolving absolute path: %w", err))
			return
		}
		info, err := os.Stat(absRoot)
		if err != nil {
			yield(nil, fmt.Errorf("stat root: %w", err))
			return
		}
		if !info.IsDir() {
			yield(nil, fmt.Errorf("not a directory: %s", absRoot))
			return
		}

		matcher, err := m.matcher(absRoot)
		if err != nil {
			yield(nil, err)
			return
		}

		stopped := false
		emit := func(f *serac.LocalFileState, err error) error {
			if !yield(f, err) {
				stopped = true
				return fs.SkipAll
			}
			return nil
		}

		walkErr := filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
			if p == absRoot {
				// The root itself must be readable.
				return err
			}

			rel, relErr := filepath.Rel(absRoot, p)
			if relErr != nil {
				return relErr
			}
			name := filepath.ToSlash(rel)

			if err != nil {
				if skipErr := emit(nil, fmt.Errorf("%w: %s: %w", serac.ErrLocalIO, name, err)); skipErr != nil {
					return skipErr
				}
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}

			if d.IsDir() {
				if matcher.MatchDir(name) {
					return fs.SkipDir
				}
				return nil
			}
			if matcher.Match(name) {
				return nil
			}
			if !d.Type().IsRegular() && d.Type()&fs.ModeSymlink == 0 {
				// Devices, sockets and pipes are not backed up.
				return nil
			}

			info, err := d.Info()
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					// Deleted since the directory was read.
					return nil
				}
				return emit(nil, fmt.Errorf("%w: stat %s: %w", serac.ErrLocalIO, name, err))
			}
			return emit(serac.NewLocalFileState(p, name, info), nil)
		})
		if walkErr != nil && !stopped {
			yield(nil, fmt.Errorf("walking %s: %w", absRoot, walkErr))
		}
	}
}

func (m *OSFilesystemManager) matcher(absRoot string) (*IgnoreMatcher, error) {
	fromFile, err := ParseIgnoreFile(filepath.Join(absRoot, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	return NewIgnoreMatcher(slices.Concat(defaultIgnorePatterns, m.ignore, fromFile)), nil
}

// Open opens a regular file for reading.
func (m *OSFilesystemManager) Open(f *serac.LocalFileState) (io.ReadCloser, error) {
	if f.IsSymlink() {
		return nil, fmt.Errorf("cannot open symbolic link as file: %s", f.Name)
	}
	return os.Open(f.Path())
}

// Readlink returns the target of a symbolic link.
func (m *OSFilesystemManager) Readlink(f *serac.LocalFileState) (string, error) {
	return os.Readlink(f.Path())
}

// Lstat returns fresh file info without following symbolic links.
func (m *OSFilesystemManager) Lstat(f *serac.LocalFileState) (fs.FileInfo, error) {
	return os.Lstat(f.Path())
}

// Compile-time check that OSFilesystemManager implements serac.FilesystemManager interface
var _ serac.FilesystemManager = (*OSFilesystemManager)(nil)
