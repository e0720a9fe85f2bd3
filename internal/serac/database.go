package serac

import (
	"database/sql"
	"time"

	"serac-go/internal/model"
)

// Database is the local, per-destination store: the append-only manifest
// cache and the history of backup runs.
type Database interface {
	// Manifest cache

	// FindManifest returns the cached bytes of a manifest, or nil if the
	// chunk has not been cached yet.
	FindManifest(id model.ChunkID) ([]byte, error)

	// InsertManifest caches the bytes of a manifest. Manifests are immutable,
	// so inserting an id that is already cached is a no-op.
	InsertManifest(id model.ChunkID, body []byte) error

	// ListManifestIDs returns all cached chunk ids in ascending order.
	ListManifestIDs() ([]model.ChunkID, error)

	// Run history

	// CreateRun records the start of a backup run and sets run.ID.
	CreateRun(run *Run) error

	// FinishRun records the outcome of a run.
	FinishRun(run *Run) error

	// ListRuns returns the most recent runs, newest first.
	ListRuns(limit int) ([]*Run, error)

	// Close closes the database connection.
	Close() error
}

// Run is one recorded invocation of the backup engine.
type Run struct {
	ID          int64
	RunID       string // UUID, also used as the log correlation id
	Destination string
	Root        string
	StartedAt   time.Time
	FinishedAt  sql.NullTime
	Status      string // "running", "success", "warning" or "error"
	Chunks      int
	Files       int
	Warnings    int
}

// Run statuses.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusWarning = "warning"
	RunStatusError   = "error"
)
