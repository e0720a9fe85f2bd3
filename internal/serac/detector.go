package serac

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"
)

// Decision is the outcome of change detection for one local file.
type Decision int

const (
	Unchanged Decision = iota
	PendingUpload
)

func (d Decision) String() string {
	switch d {
	case Unchanged:
		return "unchanged"
	case PendingUpload:
		return "pending"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// Detection pairs a scanned file with its decision. Err is set (wrapping
// ErrLocalIO) when the file could not be hashed; Decision is then meaningless.
type Detection struct {
	File     *LocalFileState
	Decision Decision
	Err      error
}

// Decide compares f against the catalog. The digest is only computed when
// size and modification time both match the authoritative record (times to
// within a microsecond).
func (s *Service) Decide(f *LocalFileState, catalog *Catalog) (Decision, error) {
	entry := catalog.Lookup(f.Name)
	if entry == nil {
		return PendingUpload, nil
	}

	rec := entry.Record
	if rec.Size != f.Size || !sameModified(rec.Modified, f.Modified) {
		return PendingUpload, nil
	}

	digest, err := DigestFile(s.fsmgr, f)
	if err != nil {
		return PendingUpload, err
	}
	if digest != rec.Digest {
		s.logger.Debug("content changed with same metadata", "file", f.Name)
		return PendingUpload, nil
	}
	return Unchanged, nil
}

// DecideAll runs Decide over a window of scanned files, hashing up to
// workers files concurrently. Results are in the order of files.
func (s *Service) DecideAll(files []*LocalFileState, catalog *Catalog) []Detection {
	out := make([]Detection, len(files))

	var g errgroup.Group
	g.SetLimit(max(s.hashWorkers, 1))
	for i, f := range files {
		g.Go(func() error {
			d, err := s.Decide(f, catalog)
			out[i] = Detection{File: f, Decision: d, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// modifiedTolerance absorbs the difference between truncating and rounding
// nanosecond times to the microseconds manifests store. Records written by
// other tools may have rounded up.
const modifiedTolerance = time.Microsecond

// sameModified compares modification times at the precision manifests store.
// Times within modifiedTolerance count as equal; the digest decides then.
func sameModified(a, b time.Time) bool {
	d := a.Truncate(time.Microsecond).Sub(b.Truncate(time.Microsecond))
	return d.Abs() <= modifiedTolerance
}

// DigestFile returns the hex SHA-256 of a regular file's bytes, or of the
// target string of a symbolic link. Failures wrap ErrLocalIO.
func DigestFile(fsmgr FilesystemManager, f *LocalFileState) (string, error) {
	h := sha256.New()

	if f.IsSymlink() {
		target, err := fsmgr.Readlink(f)
		if err != nil {
			return "", fmt.Errorf("%w: reading link %s: %w", ErrLocalIO, f.Name, err)
		}
		io.WriteString(h, target)
		return hex.EncodeToString(h.Sum(nil)), nil
	}

	r, err := fsmgr.Open(f)
	if err != nil {
		return "", fmt.Errorf("%w: opening %s: %w", ErrLocalIO, f.Name, err)
	}
	defer r.Close()

	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("%w: hashing %s: %w", ErrLocalIO, f.Name, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
