package serac

import (
	"bytes"
	"context"
	"fmt"

	"github.com/dustin/go-humanize"

	"serac-go/internal/model"
)

// publish uploads a sealed chunk: the archive to the cold tier first, then
// the manifest to the standard tier. If the process dies between the two,
// the destination holds an archive nobody references, which is harmless.
// The reverse order could leave a manifest pointing at nothing.
func (s *Service) publish(ctx context.Context, m *model.Manifest, archiveSize int64) error {
	body, err := model.EncodeManifest(m)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}

	archive, err := s.stagingArea.Open()
	if err != nil {
		return fmt.Errorf("opening staged archive: %w", err)
	}
	defer archive.Close()

	archiveKey := ArchiveKey(m.ChunkID)
	if err := s.vault.Put(ctx, archiveKey, archive, archiveSize, s.archiveClass); err != nil {
		return fmt.Errorf("%w: uploading %s: %w", ErrTransientUpload, archiveKey, err)
	}
	s.logger.Debug("archive uploaded", "key", archiveKey, "size", archiveSize)

	manifestKey := ManifestKey(m.ChunkID)
	if err := s.vault.Put(ctx, manifestKey, bytes.NewReader(body), int64(len(body)), StorageClassStandard); err != nil {
		return fmt.Errorf("%w: uploading %s: %w", ErrTransientUpload, manifestKey, err)
	}

	// The chunk is durable now. A cache miss is refetched on the next run.
	if err := s.database.InsertManifest(m.ChunkID, body); err != nil {
		s.logger.Warn("caching published manifest", "chunk", m.ChunkID, "error", err)
	}

	s.logger.Info("chunk published",
		"chunk", m.ChunkID,
		"files", len(m.Entries),
		"size", humanize.IBytes(uint64(m.TotalSize())),
		"archive_size", humanize.IBytes(uint64(archiveSize)))
	return nil
}
