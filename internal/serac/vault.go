package serac

import (
	"context"
	"io"
	"strings"
	"time"

	"serac-go/internal/model"
)

// StorageClass names the storage tier of an object.
type StorageClass string

const (
	// StorageClassStandard is immediately retrievable storage. Manifests and
	// reports always live here.
	StorageClassStandard StorageClass = "STANDARD"

	// StorageClassDeepArchive is the default cold tier for archives.
	StorageClassDeepArchive StorageClass = "DEEP_ARCHIVE"
)

// ObjectInfo describes one object in a destination.
type ObjectInfo struct {
	Key          string // Relative to the destination root, e.g. "db/<chunk_id>.json"
	Size         int64
	StorageClass StorageClass
	ModifiedAt   time.Time
}

// Vault is one backup destination (bucket + prefix) in object storage.
// Keys are relative to the destination root.
type Vault interface {
	// List returns every object whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Get writes the object's content to w. Returns ErrObjectNotFound if
	// the key does not exist.
	Get(ctx context.Context, key string, w io.Writer) error

	// Put stores size bytes read from r under key in the given storage class.
	// Existing keys are never overwritten: implementations return
	// ErrObjectExists when they can detect it.
	Put(ctx context.Context, key string, r io.Reader, size int64, class StorageClass) error

	// ValidateSetup verifies that the destination is reachable.
	ValidateSetup(ctx context.Context) error
}

// Destination layout.
const (
	ManifestPrefix = "db/"
	ArchivePrefix  = "data/"
	ReportPrefix   = "reports/"

	// legacyReportPrefix is where older versions of the uploader put reports.
	legacyReportPrefix = "report/"

	manifestSuffix = ".json"
	archiveSuffix  = ".tar"
	reportSuffix   = ".csv"
)

// ManifestKey returns the key of a chunk's manifest.
func ManifestKey(id model.ChunkID) string {
	return ManifestPrefix + string(id) + manifestSuffix
}

// ArchiveKey returns the key of a chunk's archive.
func ArchiveKey(id model.ChunkID) string {
	return ArchivePrefix + string(id) + archiveSuffix
}

// ReportKey returns the key of a report generated at t.
func ReportKey(t time.Time) string {
	return ReportPrefix + t.UTC().Format("20060102-150405") + reportSuffix
}

// chunkIDFromKey extracts the chunk id from a key of the form
// <prefix><chunk_id><suffix>. ok is false if the key does not match.
func chunkIDFromKey(key, prefix, suffix string) (model.ChunkID, bool) {
	if !strings.HasPrefix(key, prefix) || !strings.HasSuffix(key, suffix) {
		return "", false
	}
	id, err := model.ParseChunkID(strings.TrimSuffix(strings.TrimPrefix(key, prefix), suffix))
	if err != nil {
		return "", false
	}
	return id, true
}
