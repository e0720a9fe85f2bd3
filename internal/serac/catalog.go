package serac

import (
	"bytes"
	"context"
	"fmt"
	"slices"

	"serac-go/internal/model"
)

// CatalogEntry is one version of a file: a record and the chunk holding it.
type CatalogEntry struct {
	ChunkID model.ChunkID
	Record  *model.FileRecord
}

// Catalog is the merged view of every manifest of a destination.
// Manifests form an append-only log; the view is the ordered reduction of
// that log where, per name, the record of the greatest chunk id wins.
type Catalog struct {
	manifests []*model.Manifest
	versions  map[string][]*CatalogEntry // ascending by chunk id
}

// NewCatalog merges the given manifests. Order of the arguments does not matter.
func NewCatalog(manifests ...*model.Manifest) *Catalog {
	sorted := slices.Clone(manifests)
	slices.SortFunc(sorted, func(a, b *model.Manifest) int {
		return compareChunkIDs(a.ChunkID, b.ChunkID)
	})

	c := &Catalog{versions: make(map[string][]*CatalogEntry)}
	for _, m := range sorted {
		c.apply(m)
	}
	return c
}

// Add merges a newly published manifest into the view.
func (c *Catalog) Add(m *model.Manifest) {
	if n := len(c.manifests); n > 0 && compareChunkIDs(m.ChunkID, c.manifests[n-1].ChunkID) <= 0 {
		// Out of order: rebuild so latest-wins still holds.
		rebuilt := NewCatalog(append(slices.Clone(c.manifests), m)...)
		*c = *rebuilt
		return
	}
	c.apply(m)
}

func (c *Catalog) apply(m *model.Manifest) {
	c.manifests = append(c.manifests, m)
	for _, r := range m.Entries {
		c.versions[r.Name] = append(c.versions[r.Name], &CatalogEntry{ChunkID: m.ChunkID, Record: r})
	}
}

// Lookup returns the authoritative entry for name, or nil if the file was
// never backed up.
func (c *Catalog) Lookup(name string) *CatalogEntry {
	v := c.versions[name]
	if len(v) == 0 {
		return nil
	}
	return v[len(v)-1]
}

// History returns every version of name, newest first.
func (c *Catalog) History(name string) []*CatalogEntry {
	v := slices.Clone(c.versions[name])
	slices.Reverse(v)
	return v
}

// Names returns every file name in the catalog, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.versions))
	for name := range c.versions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of distinct file names.
func (c *Catalog) Len() int {
	return len(c.versions)
}

// Manifests returns the merged manifests in ascending chunk id order.
func (c *Catalog) Manifests() []*model.Manifest {
	return slices.Clone(c.manifests)
}

func compareChunkIDs(a, b model.ChunkID) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// LoadCatalog lists the destination, verifies its consistency, fetches every
// manifest missing from the local cache and returns the merged view along
// with the listing.
func (s *Service) LoadCatalog(ctx context.Context) (*Catalog, *RemoteListing, error) {
	objects, err := s.vault.List(ctx, "")
	if err != nil {
		return nil, nil, fmt.Errorf("%w: listing destination: %w", ErrRemoteUnavailable, err)
	}

	listing := NewRemoteListing(objects)
	if err := listing.Verify(); err != nil {
		return nil, nil, err
	}
	for _, w := range listing.Warnings(s.archiveClass) {
		s.logger.Warn("remote inconsistency", "detail", w)
	}

	cachedIDs, err := s.database.ListManifestIDs()
	if err != nil {
		return nil, nil, fmt.Errorf("reading manifest cache: %w", err)
	}
	cached := make(map[model.ChunkID]bool, len(cachedIDs))
	for _, id := range cachedIDs {
		if _, ok := listing.Manifests[id]; !ok {
			// The destination is authoritative; stale cache entries are ignored.
			s.logger.Warn("cached manifest not in destination", "chunk", id)
			continue
		}
		cached[id] = true
	}

	ids := listing.ManifestIDs()
	manifests := make([]*model.Manifest, 0, len(ids))
	fetched := 0
	for _, id := range ids {
		var body []byte
		if cached[id] {
			if body, err = s.database.FindManifest(id); err != nil {
				return nil, nil, fmt.Errorf("reading manifest cache: %w", err)
			}
		}

		if body == nil {
			body, err = s.fetchManifest(ctx, id)
			if err != nil {
				return nil, nil, err
			}
			fetched++
		}

		m, err := model.DecodeManifest(id, body)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrCorruptManifest, err)
		}
		manifests = append(manifests, m)
	}

	catalog := NewCatalog(manifests...)
	s.logger.Info("catalog loaded", "manifests", len(manifests), "fetched", fetched, "files", catalog.Len())
	return catalog, listing, nil
}

// fetchManifest downloads one manifest, validates it and stores it in the cache.
// Nothing is cached unless the manifest parses.
func (s *Service) fetchManifest(ctx context.Context, id model.ChunkID) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.vault.Get(ctx, ManifestKey(id), &buf); err != nil {
		return nil, fmt.Errorf("%w: fetching manifest %s: %w", ErrRemoteUnavailable, id, err)
	}
	body := buf.Bytes()

	if _, err := model.DecodeManifest(id, body); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptManifest, err)
	}
	if err := s.database.InsertManifest(id, body); err != nil {
		return nil, fmt.Errorf("caching manifest %s: %w", id, err)
	}

	s.logger.Debug("manifest fetched", "chunk", id, "size", len(body))
	return body, nil
}
