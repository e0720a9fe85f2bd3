package staging

import (
	"archive/tar"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"

	"serac-go/internal/model"
	"serac-go/internal/serac"
)

// stagingArea implements serac.StagingArea as a tar archive written to a
// pluggable archiveStore. Each entry is written by its own tar.Writer and
// padded to a block boundary, so a failed entry is undone by truncating the
// store back to where its header started.
type stagingArea struct {
	fsmgr  serac.FilesystemManager
	store  archiveStore
	sealed bool
	mu     sync.Mutex
}

var _ serac.StagingArea = (*stagingArea)(nil)

func newStagingArea(fsmgr serac.FilesystemManager, store archiveStore) *stagingArea {
	return &stagingArea{fsmgr: fsmgr, store: store}
}

// Add appends f to the archive.
func (s *stagingArea) Add(f *serac.LocalFileState) (*model.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return nil, fmt.Errorf("archive is sealed")
	}

	// 1. Fresh stat; size and modification time must still be the scanned
	//    ones since the chunk threshold and change decision used them.
	info1, err := s.fsmgr.Lstat(f)
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", serac.ErrLocalIO, f.Name, err)
	}
	if info1.Size() != f.Size || info1.Mode().Type() != f.Mode.Type() || !info1.ModTime().Equal(f.Modified) {
		return nil, fmt.Errorf("%w: %s changed since scan", serac.ErrLocalIO, f.Name)
	}

	// 2. Write the entry, hashing what goes into the archive.
	offset := s.store.Size()
	digest, err := s.writeEntry(f, info1)
	if err != nil {
		return nil, s.rollback(offset, err)
	}

	// 3. Re-stat to validate the file did not change while being copied.
	info2, err := s.fsmgr.Lstat(f)
	if err != nil {
		return nil, s.rollback(offset, fmt.Errorf("%w: re-stat %s: %w", serac.ErrLocalIO, f.Name, err))
	}
	if err := validateStatUnchanged(info1, info2); err != nil {
		return nil, s.rollback(offset, fmt.Errorf("%w: %s changed during staging: %w", serac.ErrLocalIO, f.Name, err))
	}

	return &model.FileRecord{
		Name:     f.Name,
		Size:     info1.Size(),
		Modified: info1.ModTime(),
		Digest:   digest,
	}, nil
}

// writeEntry writes header and content of one file and returns the digest of
// the content (the link target for symbolic links).
func (s *stagingArea) writeEntry(f *serac.LocalFileState, info fs.FileInfo) (string, error) {
	h := sha256.New()

	var target string
	if f.IsSymlink() {
		var err error
		target, err = s.fsmgr.Readlink(f)
		if err != nil {
			return "", fmt.Errorf("%w: reading link %s: %w", serac.ErrLocalIO, f.Name, err)
		}
		io.WriteString(h, target)
	}

	hdr, err := tar.FileInfoHeader(info, target)
	if err != nil {
		return "", fmt.Errorf("%w: tar header for %s: %w", serac.ErrLocalIO, f.Name, err)
	}
	hdr.Name = f.Name
	hdr.Uname, hdr.Gname = "", ""

	tw := tar.NewWriter(s.store)
	if err := tw.WriteHeader(hdr); err != nil {
		return "", fmt.Errorf("writing tar header for %s: %w", f.Name, err)
	}

	if !f.IsSymlink() {
		r, err := s.fsmgr.Open(f)
		if err != nil {
			return "", fmt.Errorf("%w: opening %s: %w", serac.ErrLocalIO, f.Name, err)
		}
		src := &sourceReader{r: r}
		_, err = io.CopyN(tw, io.TeeReader(src, h), info.Size())
		r.Close()
		if err != nil {
			if src.err != nil || errors.Is(err, io.EOF) {
				return "", fmt.Errorf("%w: reading %s: %w", serac.ErrLocalIO, f.Name, err)
			}
			return "", fmt.Errorf("writing %s to archive: %w", f.Name, err)
		}
	}

	// Flush pads the entry without writing the end-of-archive marker.
	if err := tw.Flush(); err != nil {
		return "", fmt.Errorf("finishing tar entry for %s: %w", f.Name, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// rollback removes a partially written entry and returns cause. If the store
// cannot be truncated the archive is unusable, so the error no longer wraps
// ErrLocalIO.
func (s *stagingArea) rollback(offset int64, cause error) error {
	if err := s.store.Truncate(offset); err != nil {
		return fmt.Errorf("rolling back archive after %v: %w", cause, err)
	}
	return cause
}

// Seal writes the end-of-archive marker and returns the archive size.
func (s *stagingArea) Seal() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return 0, fmt.Errorf("archive is already sealed")
	}
	if err := tar.NewWriter(s.store).Close(); err != nil {
		return 0, fmt.Errorf("writing end of archive: %w", err)
	}
	s.sealed = true
	return s.store.Size(), nil
}

// Open returns a reader over the sealed archive.
func (s *stagingArea) Open() (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.sealed {
		return nil, fmt.Errorf("archive is not sealed")
	}
	return s.store.Open()
}

// Reset discards the archive and starts a new one.
func (s *stagingArea) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Truncate(0); err != nil {
		return fmt.Errorf("resetting archive: %w", err)
	}
	s.sealed = false
	return nil
}

// Close releases the store.
func (s *stagingArea) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Close()
}

// sourceReader remembers read errors so they can be told apart from errors
// writing to the store.
type sourceReader struct {
	r   io.Reader
	err error
}

func (r *sourceReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err != nil && err != io.EOF {
		r.err = err
	}
	return n, err
}

// validateStatUnchanged checks that file metadata hasn't changed.
// Access time is ignored as our own read may change it.
func validateStatUnchanged(info1, info2 fs.FileInfo) error {
	if info1.Size() != info2.Size() {
		return fmt.Errorf("size changed: %d -> %d", info1.Size(), info2.Size())
	}
	if info1.Mode() != info2.Mode() {
		return fmt.Errorf("mode changed: %v -> %v", info1.Mode(), info2.Mode())
	}
	if !info1.ModTime().Equal(info2.ModTime()) {
		return fmt.Errorf("mtime changed: %v -> %v", info1.ModTime(), info2.ModTime())
	}

	stat1, ok1 := extractStatData(info1)
	stat2, ok2 := extractStatData(info2)
	if !ok1 || !ok2 {
		return nil
	}
	if !stat1.Ctime.Equal(stat2.Ctime) {
		return fmt.Errorf("ctime changed: %v -> %v", stat1.Ctime, stat2.Ctime)
	}
	if stat1.UID != stat2.UID {
		return fmt.Errorf("uid changed: %d -> %d", stat1.UID, stat2.UID)
	}
	if stat1.GID != stat2.GID {
		return fmt.Errorf("gid changed: %d -> %d", stat1.GID, stat2.GID)
	}
	return nil
}
