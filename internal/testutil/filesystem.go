package testutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"serac-go/internal/serac"
)

// MockFile represents a file or symbolic link in the mock filesystem.
type MockFile struct {
	Content []byte
	Target  string // link target; set for symbolic links only
	Mode    fs.FileMode
	ModTime time.Time

	// Files added with AddLargeFile have no Content; reads generate
	// PatternContent bytes instead.
	lazySize int64
	lazy     bool
}

func (f *MockFile) size() int64 {
	switch {
	case f.Mode&fs.ModeSymlink != 0:
		return int64(len(f.Target))
	case f.lazy:
		return f.lazySize
	default:
		return int64(len(f.Content))
	}
}

// MockFilesystemManager is an in-memory filesystem for testing.
// Paths are absolute; Scan yields names relative to the scan root.
// It is safe for concurrent use.
type MockFilesystemManager struct {
	mu         sync.Mutex
	files      map[string]*MockFile
	openErrs   map[string]error
	scanErrs   map[string]error
	scanErr    error
	openCounts map[string]int
	defaultMod time.Time
}

// NewMockFilesystemManager creates a new mock filesystem.
func NewMockFilesystemManager() *MockFilesystemManager {
	return &MockFilesystemManager{
		files:      make(map[string]*MockFile),
		openErrs:   make(map[string]error),
		scanErrs:   make(map[string]error),
		openCounts: make(map[string]int),
		defaultMod: time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC),
	}
}

// AddFile adds a regular file with a fixed modification time.
func (m *MockFilesystemManager) AddFile(path string, content []byte) {
	m.AddFileWithModTime(path, content, m.defaultMod)
}

// AddFileWithModTime adds a regular file modified at mtime.
func (m *MockFilesystemManager) AddFileWithModTime(path string, content []byte, mtime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[filepath.Clean(path)] = &MockFile{Content: content, Mode: 0644, ModTime: mtime}
}

// AddLargeFile adds a regular file of the given size whose content is
// generated on read (see PatternContent), so tests can back up hundreds of
// megabytes without holding them in memory.
func (m *MockFilesystemManager) AddLargeFile(path string, size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[filepath.Clean(path)] = &MockFile{Mode: 0644, ModTime: m.defaultMod, lazy: true, lazySize: size}
}

// AddSymlink adds a symbolic link pointing at target.
func (m *MockFilesystemManager) AddSymlink(path, target string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[filepath.Clean(path)] = &MockFile{Target: target, Mode: fs.ModeSymlink | 0777, ModTime: m.defaultMod}
}

// SetContent replaces a file's content but keeps its modification time,
// like an edit that preserves mtime.
func (m *MockFilesystemManager) SetContent(path string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.mustGet(path)
	f.Content = content
	f.lazy = false
}

// Touch sets a file's modification time.
func (m *MockFilesystemManager) Touch(path string, mtime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mustGet(path).ModTime = mtime
}

// Remove deletes a file.
func (m *MockFilesystemManager) Remove(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, filepath.Clean(path))
}

// FailOpen makes Open and Readlink of path fail with err.
func (m *MockFilesystemManager) FailOpen(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErrs[filepath.Clean(path)] = err
}

// AddScanError makes Scan yield an unreadable entry at path. The error
// wraps serac.ErrLocalIO.
func (m *MockFilesystemManager) AddScanError(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanErrs[filepath.Clean(path)] = err
}

// FailScan makes Scan fail immediately with err.
func (m *MockFilesystemManager) FailScan(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanErr = err
}

// OpenCount returns how many times path was opened.
func (m *MockFilesystemManager) OpenCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCounts[filepath.Clean(path)]
}

func (m *MockFilesystemManager) mustGet(path string) *MockFile {
	f, ok := m.files[filepath.Clean(path)]
	if !ok {
		panic(fmt.Sprintf("mock file not found: %s", path))
	}
	return f
}

// Scan yields files under root ordered like a depth-first walk with sorted
// directory entries.
func (m *MockFilesystemManager) Scan(root string) iter.Seq2[*serac.LocalFileState, error] {
	return func(yield func(*serac.LocalFileState, error) bool) {
		root = filepath.Clean(root)

		type entry struct {
			abs, name string
			err       error
			info      fs.FileInfo
		}

		m.mu.Lock()
		if m.scanErr != nil {
			err := m.scanErr
			m.mu.Unlock()
			yield(nil, err)
			return
		}
		var entries []entry
		for p, f := range m.files {
			if name, ok := relativeName(root, p); ok {
				entries = append(entries, entry{abs: p, name: name, info: newMockFileInfo(p, f)})
			}
		}
		for p, err := range m.scanErrs {
			if name, ok := relativeName(root, p); ok {
				entries = append(entries, entry{abs: p, name: name, err: err})
			}
		}
		m.mu.Unlock()

		slices.SortFunc(entries, func(a, b entry) int {
			return slices.Compare(strings.Split(a.name, "/"), strings.Split(b.name, "/"))
		})

		for _, e := range entries {
			if e.err != nil {
				if !yield(nil, fmt.Errorf("%w: %s: %w", serac.ErrLocalIO, e.name, e.err)) {
					return
				}
				continue
			}
			if !yield(serac.NewLocalFileState(e.abs, e.name, e.info), nil) {
				return
			}
		}
	}
}

func relativeName(root, path string) (string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Open opens a regular file.
func (m *MockFilesystemManager) Open(f *serac.LocalFileState) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := filepath.Clean(f.Path())
	m.openCounts[p]++
	if err := m.openErrs[p]; err != nil {
		return nil, err
	}
	file, ok := m.files[p]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", p, fs.ErrNotExist)
	}
	if file.Mode&fs.ModeSymlink != 0 {
		return nil, fmt.Errorf("open %s: refusing to follow symlink", p)
	}
	if file.lazy {
		return io.NopCloser(PatternContent(file.lazySize)), nil
	}
	return io.NopCloser(bytes.NewReader(file.Content)), nil
}

// Readlink returns the target of a symbolic link.
func (m *MockFilesystemManager) Readlink(f *serac.LocalFileState) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := filepath.Clean(f.Path())
	if err := m.openErrs[p]; err != nil {
		return "", err
	}
	file, ok := m.files[p]
	if !ok {
		return "", fmt.Errorf("readlink %s: %w", p, fs.ErrNotExist)
	}
	if file.Mode&fs.ModeSymlink == 0 {
		return "", fmt.Errorf("readlink %s: not a symlink", p)
	}
	return file.Target, nil
}

// Lstat returns current file info.
func (m *MockFilesystemManager) Lstat(f *serac.LocalFileState) (fs.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := filepath.Clean(f.Path())
	file, ok := m.files[p]
	if !ok {
		return nil, fmt.Errorf("lstat %s: %w", p, fs.ErrNotExist)
	}
	return newMockFileInfo(p, file), nil
}

// mockFileInfo implements fs.FileInfo
type mockFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
}

func newMockFileInfo(path string, f *MockFile) *mockFileInfo {
	return &mockFileInfo{name: filepath.Base(path), size: f.size(), mode: f.Mode, modTime: f.ModTime}
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() fs.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return false }
func (m *mockFileInfo) Sys() any           { return nil }

// PatternContent returns a reader over size generated bytes. The same size
// always produces the same bytes.
func PatternContent(size int64) io.Reader {
	return io.LimitReader(&patternReader{}, size)
}

type patternReader struct {
	off int64
}

func (r *patternReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r.off % 251)
		r.off++
	}
	return len(p), nil
}

// ErrInjected is a generic failure for tests that inject errors.
var ErrInjected = errors.New("injected failure")

// Compile-time check
var _ serac.FilesystemManager = (*MockFilesystemManager)(nil)
