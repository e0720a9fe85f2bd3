package serac

import (
	"io"
	"io/fs"
	"iter"
	"time"
)

// LocalFileState is the scanned state of one regular file or symbolic link.
// It is not hashed at scan time.
type LocalFileState struct {
	Name     string      // Slash-separated path relative to the backup root
	Size     int64       // Byte length (link target length for symlinks)
	Modified time.Time   // Modification time
	Mode     fs.FileMode // File mode as returned by lstat
	absPath  string
}

// NewLocalFileState creates a LocalFileState from its components.
// This is primarily for use by FilesystemManager implementations.
func NewLocalFileState(absPath, name string, info fs.FileInfo) *LocalFileState {
	return &LocalFileState{
		Name:     name,
		Size:     info.Size(),
		Modified: info.ModTime(),
		Mode:     info.Mode(),
		absPath:  absPath,
	}
}

// Path returns the absolute path of the file.
func (f *LocalFileState) Path() string {
	return f.absPath
}

// IsSymlink reports whether the file is a symbolic link.
func (f *LocalFileState) IsSymlink() bool {
	return f.Mode&fs.ModeSymlink != 0
}

// FilesystemManager abstracts the local tree so the engine can be tested
// without touching the real filesystem.
type FilesystemManager interface {
	// Scan yields every regular file and symbolic link under root in a stable
	// order: depth first, entries of each directory sorted by name. Other file
	// types are skipped silently. An entry that cannot be
	// read yields an error wrapping ErrLocalIO and the scan continues; any
	// other error means the scan cannot proceed.
	Scan(root string) iter.Seq2[*LocalFileState, error]

	// Open opens a regular file for reading.
	Open(f *LocalFileState) (io.ReadCloser, error)

	// Readlink returns the target of a symbolic link.
	Readlink(f *LocalFileState) (string, error)

	// Lstat returns fresh file info without following symbolic links.
	// Unlike the scanned state, this always fetches current info.
	Lstat(f *LocalFileState) (fs.FileInfo, error)
}
