package serac

import "errors"

// Error taxonomy of a backup run. Every error returned by the engine wraps
// exactly one of these; use errors.Is to classify. All of them abort the run
// except ErrLocalIO, which is collected as a warning on BackupResult.
var (
	// ErrRemoteUnavailable: the destination could not be listed or read.
	ErrRemoteUnavailable = errors.New("remote unavailable")

	// ErrCorruptManifest: a manifest could not be parsed, or the remote
	// catalog references an archive that does not exist.
	ErrCorruptManifest = errors.New("corrupt manifest")

	// ErrTransientUpload: an archive or manifest upload failed. Not retried.
	ErrTransientUpload = errors.New("upload failed")

	// ErrLocalIO: a local file could not be read while hashing or archiving.
	// The file is skipped.
	ErrLocalIO = errors.New("local I/O error")

	// ErrReportPublish: the CSV report could not be uploaded. All chunks are
	// already durable when this happens.
	ErrReportPublish = errors.New("report publish failed")
)

// ErrObjectExists is returned by vaults that refuse to overwrite an existing key.
var ErrObjectExists = errors.New("object already exists")

// ErrObjectNotFound is returned by vaults when a key does not exist.
var ErrObjectNotFound = errors.New("object not found")
