package staging

import "io"

// archiveStore holds the bytes of the archive being built.
// Concurrency is managed by the caller (stagingArea.mu), so stores
// do not need to be safe for concurrent use.
type archiveStore interface {
	// Write appends to the archive.
	io.Writer

	// Size returns the number of bytes written so far.
	Size() int64

	// Truncate discards everything after the first size bytes; the next
	// Write continues at size.
	Truncate(size int64) error

	// Open returns a reader over the whole archive. The store must not be
	// written to while the reader is in use.
	Open() (io.ReadCloser, error)

	// Close releases the store. It cannot be used afterwards.
	Close() error
}
