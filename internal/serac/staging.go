package serac

import (
	"io"

	"serac-go/internal/model"
)

// StagingArea builds the archive of the chunk currently being filled.
// One archive is staged at a time; Reset starts the next one.
type StagingArea interface {
	// Add appends a file to the archive and returns the record describing the
	// bytes actually archived (digest computed while copying).
	// If the file cannot be read, or no longer matches its scanned size and
	// modification time, the partial entry is rolled back and the returned
	// error wraps ErrLocalIO. Other errors mean the staging area itself failed.
	Add(f *LocalFileState) (*model.FileRecord, error)

	// Seal finishes the archive and returns its size in bytes.
	// No files can be added after Seal until Reset.
	Seal() (int64, error)

	// Open returns a reader over the sealed archive.
	Open() (io.ReadCloser, error)

	// Reset discards the current archive.
	Reset() error

	// Close releases all resources held by the staging area.
	Close() error
}
