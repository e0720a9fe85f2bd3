package app

import (
	"errors"
	"time"

	"serac-go/internal/serac"
)

// BackupRun tracks one backup invocation in the run history of a cache.
// Runs are created in memory with ID=0; only runs that may upload are
// persisted, which gives them an auto-increment ID from the database.
type BackupRun struct {
	*serac.Run
}

// NewBackupRun creates a new in-memory run.
func NewBackupRun(runID, destination, root string, startedAt time.Time) *BackupRun {
	return &BackupRun{Run: &serac.Run{
		RunID:       runID,
		Destination: destination,
		Root:        root,
		StartedAt:   startedAt,
		Status:      serac.RunStatusRunning,
	}}
}

// Persisted returns true if this run has been saved to the database.
func (r *BackupRun) Persisted() bool {
	return r.ID != 0
}

// Complete records the outcome of the run. result may be nil when the run
// failed before anything was scanned.
func (r *BackupRun) Complete(result *serac.BackupResult, err error) {
	if result != nil {
		r.Chunks = len(result.Chunks)
		r.Files = result.FilesUploaded
		r.Warnings = len(result.Warnings)
	}

	switch {
	case errors.Is(err, serac.ErrReportPublish):
		// Every chunk made it; only the report is missing.
		r.Status = serac.RunStatusWarning
	case err != nil:
		r.Status = serac.RunStatusError
	case r.Warnings > 0:
		r.Status = serac.RunStatusWarning
	default:
		r.Status = serac.RunStatusSuccess
	}
}
