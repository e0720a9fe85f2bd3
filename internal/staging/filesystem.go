package staging

import (
	"errors"
	"fmt"
	"io"
	"os"

	"serac-go/internal/serac"
)

// fileStore keeps the archive in a temporary file under the staging
// directory, so chunks larger than memory can be built.
type fileStore struct {
	f    *os.File
	size int64
}

func newFileStore(stagingDir string) (*fileStore, error) {
	if err := os.MkdirAll(stagingDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	f, err := os.CreateTemp(stagingDir, "chunk-*.tar")
	if err != nil {
		return nil, fmt.Errorf("creating staging file: %w", err)
	}
	return &fileStore{f: f}, nil
}

func (s *fileStore) Write(p []byte) (int, error) {
	n, err := s.f.Write(p)
	s.size += int64(n)
	return n, err
}

func (s *fileStore) Size() int64 {
	return s.size
}

func (s *fileStore) Truncate(size int64) error {
	if size < 0 || size > s.size {
		return fmt.Errorf("truncate to %d: out of range (size %d)", size, s.size)
	}
	if err := s.f.Truncate(size); err != nil {
		return fmt.Errorf("truncating staging file: %w", err)
	}
	if _, err := s.f.Seek(size, io.SeekStart); err != nil {
		return fmt.Errorf("seeking staging file: %w", err)
	}
	s.size = size
	return nil
}

// Open returns an independent reader, so the write offset is untouched.
func (s *fileStore) Open() (io.ReadCloser, error) {
	if err := s.f.Sync(); err != nil {
		return nil, fmt.Errorf("syncing staging file: %w", err)
	}
	f, err := os.Open(s.f.Name())
	if err != nil {
		return nil, fmt.Errorf("opening staging file: %w", err)
	}
	return f, nil
}

func (s *fileStore) Close() error {
	name := s.f.Name()
	closeErr := s.f.Close()
	removeErr := os.Remove(name)
	if errors.Is(removeErr, os.ErrNotExist) {
		removeErr = nil
	}
	return errors.Join(closeErr, removeErr)
}

// NewFileSystemStagingArea creates a staging area that builds archives in a
// temporary file under stagingDir. The file is removed on Close.
func NewFileSystemStagingArea(fsmgr serac.FilesystemManager, stagingDir string) (serac.StagingArea, error) {
	store, err := newFileStore(stagingDir)
	if err != nil {
		return nil, err
	}
	return newStagingArea(fsmgr, store), nil
}
