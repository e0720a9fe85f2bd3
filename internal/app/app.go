package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"serac-go/internal/config"
	"serac-go/internal/database"
	"serac-go/internal/fs"
	"serac-go/internal/serac"
	"serac-go/internal/staging"
	"serac-go/internal/vault"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another backup to the same destination holds the lock.
var ErrLocked = errors.New("another backup to this destination is running")

// Options adjust how a SeracApp runs.
type Options struct {
	DryRun   bool      // stage and report, but upload nothing and keep no cache
	Verbose  bool      // debug logging on stderr
	Progress io.Writer // upload progress output; nil disables it
	Stderr   io.Writer // log output; nil means os.Stderr
}

// SeracApp is the application layer between the CLI and the backup engine.
// It constructs all dependencies of one destination from config, exposes
// high-level operations that accept raw string paths, and manages the cache
// lifecycle on Close.
type SeracApp struct {
	cfg     *config.Config
	dest    vault.Destination
	opts    Options
	db      serac.Database
	vault   serac.Vault
	staging serac.StagingArea
	service *serac.Service
	clock   serac.Clock
	runID   string
	logger  *slog.Logger
	logFile *os.File
}

// NewSeracApp creates a fully wired SeracApp for destination from the given config.
// The caller must call Close when done.
func NewSeracApp(ctx context.Context, cfg *config.Config, destination string, opts Options) (*SeracApp, error) {
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	dest, err := vault.ParseDestination(destination)
	if err != nil {
		return nil, err
	}

	runID := serac.NewRunID()
	logger, logFile, err := newLogger(cfg.LogDir, runID, opts.Stderr, opts.Verbose)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger = logger.With("destination", dest.String())
	adapter := &slogAdapter{l: logger}

	a := &SeracApp{
		cfg:     cfg,
		dest:    dest,
		opts:    opts,
		clock:   serac.RealClock{},
		runID:   runID,
		logger:  logger,
		logFile: logFile,
	}

	if err := a.wire(ctx, adapter); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *SeracApp) wire(ctx context.Context, logger serac.Logger) error {
	fsmgr := fs.NewOSFilesystemManager(a.cfg.Filesystem.Ignore)

	v, err := vault.NewVaultFromDestination(ctx, a.dest, a.cfg.Storage)
	if err != nil {
		return fmt.Errorf("creating vault: %w", err)
	}
	if a.opts.DryRun {
		v = vault.NewDryRunVault(v, logger)
	}
	if a.opts.Progress != nil {
		v = vault.NewProgressVault(v, a.opts.Progress)
	}
	a.vault = v

	cacheCfg := a.cfg.Cache
	if a.opts.DryRun {
		// Nothing is uploaded, so nothing may be cached as if it had been.
		cacheCfg = config.CacheConfig{Type: "memory"}
	}
	db, err := database.NewDatabaseFromConfig(cacheCfg, a.dest.String())
	if err != nil {
		return fmt.Errorf("creating cache: %w", err)
	}
	a.db = db
	if err := db.CheckMigrations(); err != nil {
		return fmt.Errorf("cache schema out of date: %w", err)
	}

	sa, err := staging.NewStagingAreaFromConfig(a.cfg.Staging, fsmgr)
	if err != nil {
		return fmt.Errorf("creating staging area: %w", err)
	}
	a.staging = sa

	archiveClass := serac.StorageClass(a.cfg.Storage.ArchiveClass)
	if !a.dest.HonorsStorageClass() {
		archiveClass = serac.StorageClassStandard
	}

	a.service = serac.NewService(db, sa, v, fsmgr, logger, a.clock, serac.ServiceOptions{
		ArchiveClass: archiveClass,
		HashWorkers:  a.cfg.Backup.HashWorkers,
	})
	return nil
}

// RunID returns the id of this invocation, as found in the log.
func (a *SeracApp) RunID() string {
	return a.runID
}

// lockPath is the lock file guarding the cache of the destination.
func (a *SeracApp) lockPath() string {
	return database.CachePath(filepath.Join(a.cfg.BaseDir, "locks"), a.dest.String()) + ".lock"
}

// Backup resolves root and backs it up to the destination. threshold is the
// chunk size in bytes; zero means the configured chunk size.
// Runs that may upload are recorded in the run history of the cache.
func (a *SeracApp) Backup(ctx context.Context, rawRoot string, threshold int64) (*serac.BackupResult, error) {
	root, err := filepath.Abs(rawRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", serac.ErrLocalIO, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	if threshold <= 0 {
		if threshold, err = a.cfg.Backup.ChunkSizeBytes(); err != nil {
			return nil, fmt.Errorf("chunk size: %w", err)
		}
	}

	unlock, err := a.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	run := NewBackupRun(a.runID, a.dest.String(), root, a.clock.Now())
	if !a.opts.DryRun {
		if err := a.db.CreateRun(run.Run); err != nil {
			return nil, fmt.Errorf("recording run: %w", err)
		}
	}

	a.logger.Info("backup started", "root", root, "chunk_size", threshold, "dry_run", a.opts.DryRun)
	result, err := a.service.Backup(ctx, root, threshold)
	run.Complete(result, err)

	if run.Persisted() {
		if finishErr := a.db.FinishRun(run.Run); finishErr != nil {
			a.logger.Error("recording run outcome", "error", finishErr)
		}
	}
	a.logger.Info("backup finished", "status", run.Status, "chunks", run.Chunks, "files", run.Files, "warnings", run.Warnings)
	return result, err
}

func (a *SeracApp) lock() (func(), error) {
	path := a.lockPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	l := flock.New(path)
	locked, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, a.dest)
	}
	return func() {
		if err := l.Unlock(); err != nil {
			a.logger.Warn("releasing lock", "path", path, "error", err)
		}
	}, nil
}

// Check validates access to the destination and reports its consistency.
func (a *SeracApp) Check(ctx context.Context) (*serac.CheckResult, error) {
	if err := a.vault.ValidateSetup(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", serac.ErrRemoteUnavailable, err)
	}
	return a.service.Check(ctx)
}

// List returns every file record stored in the destination.
func (a *SeracApp) List(ctx context.Context) (*serac.Catalog, error) {
	return a.service.List(ctx)
}

// FileHistory returns every backed up version of name (slash-separated,
// relative to the backup root), newest first.
func (a *SeracApp) FileHistory(ctx context.Context, name string) ([]*serac.CatalogEntry, error) {
	catalog, err := a.service.List(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.History(filepath.ToSlash(filepath.Clean(name))), nil
}

// History returns the most recent recorded runs against the destination.
func (a *SeracApp) History(limit int) ([]*serac.Run, error) {
	return a.db.ListRuns(limit)
}

// Close releases the staging area, the cache and the log file.
func (a *SeracApp) Close() error {
	var errs []error
	if a.staging != nil {
		if err := a.staging.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing staging area: %w", err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing cache: %w", err))
		}
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing log file: %w", err))
		}
	}
	return errors.Join(errs...)
}
