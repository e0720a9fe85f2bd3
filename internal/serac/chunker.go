package serac

import (
	"fmt"

	"serac-go/internal/model"
)

// DefaultChunkSize is the default chunk threshold: cumulative original file
// size above which a chunk is sealed.
const DefaultChunkSize int64 = 128 * 1024 * 1024

// ChunkIDGenerator assigns chunk ids at seal time. Ids are strictly
// increasing within a run and greater than every id already in the
// destination.
type ChunkIDGenerator struct {
	clock Clock
	seq   int
	last  model.ChunkID
}

// NewChunkIDGenerator creates a generator. latest is the greatest chunk id
// known in the destination, or "" for an empty one.
func NewChunkIDGenerator(clock Clock, latest model.ChunkID) *ChunkIDGenerator {
	return &ChunkIDGenerator{clock: clock, last: latest}
}

// Next returns the id of the chunk being sealed now.
func (g *ChunkIDGenerator) Next() model.ChunkID {
	var id model.ChunkID
	if g.seq <= model.MaxChunkSequence {
		id = model.NewChunkID(g.clock.Now(), g.seq)
	}
	g.seq++

	// Clock behind the destination, or the sequence ran out.
	if g.last != "" && id <= g.last {
		id = g.last.Successor()
	}
	g.last = id
	return id
}

// chunkBuilder accumulates pending files into the staged archive of the
// current chunk.
type chunkBuilder struct {
	staging   StagingArea
	threshold int64
	size      int64 // cumulative original size of entries
	entries   []*model.FileRecord
}

func newChunkBuilder(staging StagingArea, threshold int64) *chunkBuilder {
	return &chunkBuilder{staging: staging, threshold: threshold}
}

// WouldOverflow reports whether adding f must first seal the current chunk.
// An empty chunk always accepts a file, however large.
func (b *chunkBuilder) WouldOverflow(f *LocalFileState) bool {
	return len(b.entries) > 0 && b.size+f.Size > b.threshold
}

// Empty reports whether the current chunk has no entries.
func (b *chunkBuilder) Empty() bool {
	return len(b.entries) == 0
}

// Add stages f. Errors wrapping ErrLocalIO leave the chunk unchanged.
func (b *chunkBuilder) Add(f *LocalFileState) (*model.FileRecord, error) {
	rec, err := b.staging.Add(f)
	if err != nil {
		return nil, err
	}
	b.entries = append(b.entries, rec)
	b.size += rec.Size
	return rec, nil
}

// Seal closes the current chunk under id and returns its manifest and the
// archive size. The staged archive stays readable until reset.
func (b *chunkBuilder) Seal(id model.ChunkID) (*model.Manifest, int64, error) {
	archiveSize, err := b.staging.Seal()
	if err != nil {
		return nil, 0, fmt.Errorf("sealing archive %s: %w", id, err)
	}
	return &model.Manifest{ChunkID: id, Entries: b.entries}, archiveSize, nil
}

// reset starts a new chunk.
func (b *chunkBuilder) reset() error {
	b.entries = nil
	b.size = 0
	if err := b.staging.Reset(); err != nil {
		return fmt.Errorf("resetting staging area: %w", err)
	}
	return nil
}
