package staging

import (
	"bytes"
	"fmt"
	"io"

	"serac-go/internal/serac"
)

// memoryStore keeps the archive in memory. Suitable for tests and small chunks.
type memoryStore struct {
	buf bytes.Buffer
}

func newMemoryStore() *memoryStore {
	return &memoryStore{}
}

func (s *memoryStore) Write(p []byte) (int, error) {
	return s.buf.Write(p)
}

func (s *memoryStore) Size() int64 {
	return int64(s.buf.Len())
}

func (s *memoryStore) Truncate(size int64) error {
	if size < 0 || size > s.Size() {
		return fmt.Errorf("truncate to %d: out of range (size %d)", size, s.Size())
	}
	s.buf.Truncate(int(size))
	return nil
}

func (s *memoryStore) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.buf.Bytes())), nil
}

func (s *memoryStore) Close() error {
	s.buf = bytes.Buffer{}
	return nil
}

// NewMemoryStagingArea creates a staging area that builds archives in memory.
func NewMemoryStagingArea(fsmgr serac.FilesystemManager) serac.StagingArea {
	return newStagingArea(fsmgr, newMemoryStore())
}
