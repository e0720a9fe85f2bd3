package serac

import (
	"context"
	"errors"
	"fmt"

	"serac-go/internal/model"
)

// detectWindow is how many scanned files are handed to the change detector
// at once. Hashing inside a window may run in parallel.
const detectWindow = 64

// ServiceOptions holds the tunables of the engine.
type ServiceOptions struct {
	ArchiveClass StorageClass // Storage class for archives; manifests are always STANDARD
	HashWorkers  int          // Files hashed concurrently during change detection
}

// Service is the backup engine for one destination. It coordinates the
// scanner, the change detector, the chunk builder, the publisher and the
// report emitter.
type Service struct {
	database     Database
	stagingArea  StagingArea
	vault        Vault
	fsmgr        FilesystemManager
	logger       Logger
	clock        Clock
	archiveClass StorageClass
	hashWorkers  int
}

// NewService creates a new Service with the provided dependencies.
// The vault is the destination; the database is the local cache of that
// destination.
func NewService(database Database, stagingArea StagingArea, vault Vault, fsmgr FilesystemManager, logger Logger, clock Clock, opts ServiceOptions) *Service {
	if opts.ArchiveClass == "" {
		opts.ArchiveClass = StorageClassDeepArchive
	}
	return &Service{
		database:     database,
		stagingArea:  stagingArea,
		vault:        vault,
		fsmgr:        fsmgr,
		logger:       logger,
		clock:        clock,
		archiveClass: opts.ArchiveClass,
		hashWorkers:  max(opts.HashWorkers, 1),
	}
}

// BackupResult summarizes one backup run.
type BackupResult struct {
	Chunks         []model.ChunkID // Published chunks, in seal order
	FilesUploaded  int
	FilesUnchanged int
	BytesUploaded  int64    // Sum of original sizes of uploaded files
	Warnings       []error  // Skipped local files; each wraps ErrLocalIO
	RemoteWarnings []string // Inconsistencies found in the destination
	ReportKey      string   // Empty if no report was published
}

// Backup backs up every new or changed file under root. Pending files are
// grouped into chunks whose cumulative original size stays within threshold
// (a single larger file gets a chunk of its own); each chunk is published
// before the next one is started. When at least one chunk was published, a
// report of the whole destination is uploaded.
//
// Unreadable local files are skipped and listed in the result's Warnings.
// Any other failure aborts the run; the result then describes the chunks
// that were already published. Running again is always safe.
func (s *Service) Backup(ctx context.Context, root string, threshold int64) (*BackupResult, error) {
	if threshold <= 0 {
		threshold = DefaultChunkSize
	}

	catalog, listing, err := s.LoadCatalog(ctx)
	if err != nil {
		return nil, err
	}

	result := &BackupResult{RemoteWarnings: listing.Warnings(s.archiveClass)}
	ids := NewChunkIDGenerator(s.clock, listing.LatestChunkID())
	builder := newChunkBuilder(s.stagingArea, threshold)
	if err := builder.reset(); err != nil {
		return nil, err
	}

	sealAndPublish := func() error {
		id := ids.Next()
		m, archiveSize, err := builder.Seal(id)
		if err != nil {
			return err
		}
		if err := s.publish(ctx, m, archiveSize); err != nil {
			return err
		}

		catalog.Add(m)
		result.Chunks = append(result.Chunks, id)
		result.FilesUploaded += len(m.Entries)
		result.BytesUploaded += m.TotalSize()
		return builder.reset()
	}

	window := make([]*LocalFileState, 0, detectWindow)
	flush := func() error {
		for _, d := range s.DecideAll(window, catalog) {
			if d.Err != nil {
				s.warn(result, d.Err)
				continue
			}
			if d.Decision == Unchanged {
				result.FilesUnchanged++
				continue
			}

			if builder.WouldOverflow(d.File) {
				if err := sealAndPublish(); err != nil {
					return err
				}
			}
			if _, err := builder.Add(d.File); err != nil {
				if errors.Is(err, ErrLocalIO) {
					s.warn(result, err)
					continue
				}
				return fmt.Errorf("staging %s: %w", d.File.Name, err)
			}
			s.logger.Debug("file staged", "file", d.File.Name, "size", d.File.Size)
		}
		window = window[:0]
		return nil
	}

	for f, err := range s.fsmgr.Scan(root) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		if err != nil {
			if errors.Is(err, ErrLocalIO) {
				s.warn(result, err)
				continue
			}
			return result, fmt.Errorf("scanning %s: %w", root, err)
		}

		window = append(window, f)
		if len(window) == cap(window) {
			if err := flush(); err != nil {
				return result, err
			}
		}
	}
	if err := flush(); err != nil {
		return result, err
	}
	if !builder.Empty() {
		if err := sealAndPublish(); err != nil {
			return result, err
		}
	}

	s.logger.Info("backup complete",
		"chunks", len(result.Chunks),
		"uploaded", result.FilesUploaded,
		"unchanged", result.FilesUnchanged,
		"warnings", len(result.Warnings))

	if len(result.Chunks) == 0 {
		return result, nil
	}

	key, err := s.publishReport(ctx, catalog)
	if err != nil {
		s.logger.Warn("report not published", "error", err)
		return result, err
	}
	result.ReportKey = key
	return result, nil
}

// List returns the merged catalog of the destination.
func (s *Service) List(ctx context.Context) (*Catalog, error) {
	catalog, _, err := s.LoadCatalog(ctx)
	return catalog, err
}

func (s *Service) warn(result *BackupResult, err error) {
	s.logger.Warn("skipping file", "error", err)
	result.Warnings = append(result.Warnings, err)
}
