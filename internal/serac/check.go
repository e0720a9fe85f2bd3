package serac

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"serac-go/internal/model"
)

// RemoteListing is a destination listing classified by key layout.
type RemoteListing struct {
	Manifests map[model.ChunkID]ObjectInfo
	Archives  map[model.ChunkID]ObjectInfo
	Reports   []ObjectInfo
	Unknown   []ObjectInfo
}

// NewRemoteListing classifies objects by key.
func NewRemoteListing(objects []ObjectInfo) *RemoteListing {
	l := &RemoteListing{
		Manifests: make(map[model.ChunkID]ObjectInfo),
		Archives:  make(map[model.ChunkID]ObjectInfo),
	}
	for _, obj := range objects {
		if id, ok := chunkIDFromKey(obj.Key, ManifestPrefix, manifestSuffix); ok {
			l.Manifests[id] = obj
			continue
		}
		if id, ok := chunkIDFromKey(obj.Key, ArchivePrefix, archiveSuffix); ok {
			l.Archives[id] = obj
			continue
		}
		if isReportKey(obj.Key) {
			l.Reports = append(l.Reports, obj)
			continue
		}
		l.Unknown = append(l.Unknown, obj)
	}
	return l
}

func isReportKey(key string) bool {
	if !strings.HasSuffix(key, reportSuffix) {
		return false
	}
	return strings.HasPrefix(key, ReportPrefix) || strings.HasPrefix(key, legacyReportPrefix)
}

// ManifestIDs returns the ids of all manifests, ascending.
func (l *RemoteListing) ManifestIDs() []model.ChunkID {
	return slices.Sorted(maps.Keys(l.Manifests))
}

// LatestChunkID returns the greatest chunk id present under either the
// manifest or the archive prefix, so orphaned archives also count.
// Returns "" for an empty destination.
func (l *RemoteListing) LatestChunkID() model.ChunkID {
	var latest model.ChunkID
	for id := range l.Manifests {
		latest = max(latest, id)
	}
	for id := range l.Archives {
		latest = max(latest, id)
	}
	return latest
}

// Verify returns an error wrapping ErrCorruptManifest if any manifest has no
// archive.
func (l *RemoteListing) Verify() error {
	var missing []string
	for _, id := range l.ManifestIDs() {
		if _, ok := l.Archives[id]; !ok {
			missing = append(missing, string(id))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: manifests without archive: %s", ErrCorruptManifest, strings.Join(missing, ", "))
	}
	return nil
}

// Warnings lists inconsistencies that do not prevent a backup: archives
// without a manifest (left over by an interrupted run), archives outside
// archiveClass and keys that do not belong in a destination.
func (l *RemoteListing) Warnings(archiveClass StorageClass) []string {
	var warnings []string
	for _, id := range slices.Sorted(maps.Keys(l.Archives)) {
		obj := l.Archives[id]
		if _, ok := l.Manifests[id]; !ok {
			warnings = append(warnings, fmt.Sprintf("%s has no manifest", obj.Key))
		}
		if obj.StorageClass != "" && obj.StorageClass != archiveClass {
			warnings = append(warnings, fmt.Sprintf("%s is in storage class %s, expected %s", obj.Key, obj.StorageClass, archiveClass))
		}
	}
	for _, obj := range l.Unknown {
		warnings = append(warnings, fmt.Sprintf("%s is not supposed to be in the destination", obj.Key))
	}
	return warnings
}

// CheckResult summarizes a consistency check of a destination.
type CheckResult struct {
	Manifests int
	Archives  int
	Reports   int
	Warnings  []string
}

// Check lists the destination and reports its consistency without changing
// anything. A manifest without archive is an error wrapping ErrCorruptManifest.
func (s *Service) Check(ctx context.Context) (*CheckResult, error) {
	objects, err := s.vault.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("%w: listing destination: %w", ErrRemoteUnavailable, err)
	}

	listing := NewRemoteListing(objects)
	if err := listing.Verify(); err != nil {
		return nil, err
	}

	result := &CheckResult{
		Manifests: len(listing.Manifests),
		Archives:  len(listing.Archives),
		Reports:   len(listing.Reports),
		Warnings:  listing.Warnings(s.archiveClass),
	}
	s.logger.Info("destination checked",
		"manifests", result.Manifests,
		"archives", result.Archives,
		"warnings", len(result.Warnings))
	return result, nil
}
