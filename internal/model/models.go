package model

import (
	"fmt"
	"strconv"
	"time"
)

// FileRecord describes one file inside one archive's manifest.
type FileRecord struct {
	Name     string    // Slash-separated path relative to the backup root
	Size     int64     // Byte length at archive time
	Modified time.Time // Modification time, microsecond precision
	Digest   string    // Lower-case hex SHA-256 of the archived bytes (or link target)
}

// Manifest lists the content of one archive. Entries are in archive write order.
type Manifest struct {
	ChunkID ChunkID
	Entries []*FileRecord
}

// TotalSize returns the sum of the entries' original sizes.
func (m *Manifest) TotalSize() int64 {
	var total int64
	for _, e := range m.Entries {
		total += e.Size
	}
	return total
}

// ChunkID identifies one chunk (archive + manifest) of a destination.
// Format: YYYYMMDD-HHMMSS-NNNNNN, UTC. Lexical order is chronological order.
type ChunkID string

const (
	chunkIDTimeLayout = "20060102-150405"
	chunkIDLength     = len(chunkIDTimeLayout) + 1 + chunkIDSeqDigits
	chunkIDSeqDigits  = 6

	// MaxChunkSequence is the largest sequence number a chunk id can carry.
	MaxChunkSequence = 999999
)

// NewChunkID formats a chunk id from a seal time and a sequence number.
func NewChunkID(t time.Time, seq int) ChunkID {
	return ChunkID(fmt.Sprintf("%s-%06d", t.UTC().Format(chunkIDTimeLayout), seq))
}

// ParseChunkID validates s and returns it as a ChunkID.
func ParseChunkID(s string) (ChunkID, error) {
	if len(s) != chunkIDLength || s[len(chunkIDTimeLayout)] != '-' {
		return "", fmt.Errorf("invalid chunk id %q", s)
	}
	if _, err := time.Parse(chunkIDTimeLayout, s[:len(chunkIDTimeLayout)]); err != nil {
		return "", fmt.Errorf("invalid chunk id %q: %w", s, err)
	}
	for _, c := range s[len(chunkIDTimeLayout)+1:] {
		if c < '0' || c > '9' {
			return "", fmt.Errorf("invalid chunk id %q: bad sequence", s)
		}
	}
	return ChunkID(s), nil
}

// Time returns the seal time encoded in the id.
func (c ChunkID) Time() time.Time {
	t, _ := time.Parse(chunkIDTimeLayout, string(c)[:len(chunkIDTimeLayout)])
	return t
}

// Sequence returns the run-local sequence number encoded in the id.
func (c ChunkID) Sequence() int {
	n, _ := strconv.Atoi(string(c)[len(chunkIDTimeLayout)+1:])
	return n
}

// Successor returns the smallest well-formed id strictly greater than c.
func (c ChunkID) Successor() ChunkID {
	if c.Sequence() >= MaxChunkSequence {
		return NewChunkID(c.Time().Add(time.Second), 0)
	}
	return NewChunkID(c.Time(), c.Sequence()+1)
}

func (c ChunkID) String() string { return string(c) }
