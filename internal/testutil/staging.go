package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"

	"serac-go/internal/model"
	"serac-go/internal/serac"
	"serac-go/internal/staging"
)

// NewTestStagingArea creates a new in-memory staging area for testing.
func NewTestStagingArea(fsmgr serac.FilesystemManager) serac.StagingArea {
	return staging.NewMemoryStagingArea(fsmgr)
}

// ListingStagingArea hashes files like a real staging area but stages only
// their names: the "archive" is one name per line. Use it for tests that
// back up more data than should be held in memory.
type ListingStagingArea struct {
	fsmgr  serac.FilesystemManager
	mu     sync.Mutex
	names  []string
	sealed bool
}

// NewListingStagingArea creates a ListingStagingArea.
func NewListingStagingArea(fsmgr serac.FilesystemManager) *ListingStagingArea {
	return &ListingStagingArea{fsmgr: fsmgr}
}

func (s *ListingStagingArea) Add(f *serac.LocalFileState) (*model.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return nil, fmt.Errorf("archive is sealed")
	}

	h := sha256.New()
	if f.IsSymlink() {
		target, err := s.fsmgr.Readlink(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", serac.ErrLocalIO, f.Name, err)
		}
		io.WriteString(h, target)
	} else {
		r, err := s.fsmgr.Open(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", serac.ErrLocalIO, f.Name, err)
		}
		_, err = io.Copy(h, r)
		r.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", serac.ErrLocalIO, f.Name, err)
		}
	}

	s.names = append(s.names, f.Name)
	return &model.FileRecord{
		Name:     f.Name,
		Size:     f.Size,
		Modified: f.Modified,
		Digest:   hex.EncodeToString(h.Sum(nil)),
	}, nil
}

func (s *ListingStagingArea) listing() string {
	return strings.Join(s.names, "\n")
}

func (s *ListingStagingArea) Seal() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return 0, fmt.Errorf("archive is already sealed")
	}
	s.sealed = true
	return int64(len(s.listing())), nil
}

func (s *ListingStagingArea) Open() (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sealed {
		return nil, fmt.Errorf("archive is not sealed")
	}
	return io.NopCloser(strings.NewReader(s.listing())), nil
}

func (s *ListingStagingArea) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = nil
	s.sealed = false
	return nil
}

func (s *ListingStagingArea) Close() error {
	return s.Reset()
}

// Compile-time check
var _ serac.StagingArea = (*ListingStagingArea)(nil)
