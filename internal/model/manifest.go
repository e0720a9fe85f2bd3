package model

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"
	"unicode/utf8"
)

// ManifestVersion is the only manifest format version this tool reads and writes.
const ManifestVersion = 1

// Modification times carry microseconds only when non-zero and always a
// numeric offset, e.g. 2024-07-06T11:46:54.123456+00:00.
const (
	modifiedLayout       = "2006-01-02T15:04:05-07:00"
	modifiedLayoutMicros = "2006-01-02T15:04:05.000000-07:00"
)

// manifestFile is the on-disk manifest envelope.
type manifestFile struct {
	Data    []recordJSON `json:"data"`
	Version int          `json:"version"`
}

type recordJSON struct {
	Name     fileName `json:"name"`
	Size     int64  `json:"size"`
	Modified string `json:"modified"`
	SHA      string `json:"sha"`
}

// FormatModified renders t the way manifests store modification times.
func FormatModified(t time.Time) string {
	t = t.Truncate(time.Microsecond)
	if t.Nanosecond() == 0 {
		return t.Format(modifiedLayout)
	}
	return t.Format(modifiedLayoutMicros)
}

// ParseModified parses a manifest modification time. The offset is preserved.
func ParseModified(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing modified time %q: %w", s, err)
	}
	return t, nil
}

// EncodeManifest serializes a manifest in the format existing destinations
// already hold: 4-space indentation, non-ASCII escaped as \uXXXX and no
// trailing newline. Name bytes that are not UTF-8 are kept, see fileName.
func EncodeManifest(m *Manifest) ([]byte, error) {
	f := manifestFile{
		Data:    make([]recordJSON, len(m.Entries)),
		Version: ManifestVersion,
	}
	for i, e := range m.Entries {
		f.Data[i] = recordJSON{
			Name:     fileName(e.Name),
			Size:     e.Size,
			Modified: FormatModified(e.Modified),
			SHA:      e.Digest,
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(f); err != nil {
		return nil, fmt.Errorf("encoding manifest %s: %w", m.ChunkID, err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// DecodeManifest parses and validates a manifest. Both the versioned envelope
// and a bare array of records are accepted.
func DecodeManifest(id ChunkID, data []byte) (*Manifest, error) {
	var records []recordJSON

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("decoding manifest %s: %w", id, err)
		}
	} else {
		var f manifestFile
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return nil, fmt.Errorf("decoding manifest %s: %w", id, err)
		}
		if f.Version != ManifestVersion {
			return nil, fmt.Errorf("manifest %s has unsupported version %d", id, f.Version)
		}
		records = f.Data
	}

	m := &Manifest{ChunkID: id, Entries: make([]*FileRecord, 0, len(records))}
	seen := make(map[string]bool, len(records))
	for i, r := range records {
		if r.Name == "" {
			return nil, fmt.Errorf("manifest %s: record %d has no name", id, i)
		}
		name := string(r.Name)
		if seen[name] {
			return nil, fmt.Errorf("manifest %s: duplicate record for %q", id, name)
		}
		seen[name] = true

		if r.Size < 0 {
			return nil, fmt.Errorf("manifest %s: negative size for %q", id, name)
		}
		if !validDigest(r.SHA) {
			return nil, fmt.Errorf("manifest %s: invalid digest %q for %q", id, r.SHA, name)
		}
		modified, err := ParseModified(r.Modified)
		if err != nil {
			return nil, fmt.Errorf("manifest %s: %w", id, err)
		}

		m.Entries = append(m.Entries, &FileRecord{
			Name:     name,
			Size:     r.Size,
			Modified: modified,
			Digest:   r.SHA,
		})
	}
	return m, nil
}

func validDigest(s string) bool {
	if len(s) != 64 || strings.ToLower(s) != s {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// fileName is a file name as stored in a manifest. Names are raw bytes on
// disk and need not be UTF-8: every byte that is not part of a valid UTF-8
// sequence is written as a lone low surrogate \udc80-\udcff (the
// "surrogateescape" convention) and read back as that byte. All other
// non-ASCII runes are written as \uXXXX, so the output is pure ASCII.
type fileName string

func (n fileName) MarshalJSON() ([]byte, error) {
	s := string(n)
	out := make([]byte, 0, len(s)+2)
	out = append(out, '"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			out = fmt.Appendf(out, `\u%04x`, 0xdc00+int(s[i]))
			i++
			continue
		}
		i += size

		switch {
		case r == '"':
			out = append(out, `\"`...)
		case r == '\\':
			out = append(out, `\\`...)
		case r == '\n':
			out = append(out, `\n`...)
		case r == '\r':
			out = append(out, `\r`...)
		case r == '\t':
			out = append(out, `\t`...)
		case r == '\b':
			out = append(out, `\b`...)
		case r == '\f':
			out = append(out, `\f`...)
		case r < 0x20:
			out = fmt.Appendf(out, `\u%04x`, r)
		case r < utf8.RuneSelf:
			out = append(out, byte(r))
		case r > 0xffff:
			r1, r2 := utf16.EncodeRune(r)
			out = fmt.Appendf(out, `\u%04x\u%04x`, r1, r2)
		default:
			out = fmt.Appendf(out, `\u%04x`, r)
		}
	}
	return append(out, '"'), nil
}

var errBadName = errors.New("invalid file name")

// UnmarshalJSON decodes a JSON string. encoding/json has already checked
// the syntax; only escapes need handling here.
func (n *fileName) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("%w: %s is not a string", errBadName, b)
	}
	b = b[1 : len(b)-1]

	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); {
		if b[i] != '\\' {
			out = append(out, b[i])
			i++
			continue
		}
		if i+1 >= len(b) {
			return fmt.Errorf("%w: trailing backslash", errBadName)
		}

		switch c := b[i+1]; c {
		case '"', '\\', '/':
			out = append(out, c)
		case 'b':
			out = append(out, '\b')
		case 'f':
			out = append(out, '\f')
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'u':
			r, ok := hex4(b[i+2:])
			if !ok {
				return fmt.Errorf("%w: bad \\u escape", errBadName)
			}
			i += 6
			switch {
			case r >= 0xd800 && r < 0xdc00:
				// High surrogate: a pair if a low surrogate follows.
				if len(b) >= i+6 && b[i] == '\\' && b[i+1] == 'u' {
					if r2, ok := hex4(b[i+2:]); ok && r2 >= 0xdc00 && r2 < 0xe000 {
						out = utf8.AppendRune(out, utf16.DecodeRune(r, r2))
						i += 6
						continue
					}
				}
				out = utf8.AppendRune(out, utf8.RuneError)
			case r >= 0xdc80 && r <= 0xdcff:
				out = append(out, byte(r-0xdc00))
			case utf16.IsSurrogate(r):
				out = utf8.AppendRune(out, utf8.RuneError)
			default:
				out = utf8.AppendRune(out, r)
			}
			continue
		default:
			return fmt.Errorf("%w: bad escape \\%c", errBadName, c)
		}
		i += 2
	}

	*n = fileName(out)
	return nil
}

func hex4(b []byte) (rune, bool) {
	if len(b) < 4 {
		return 0, false
	}
	v, err := strconv.ParseUint(string(b[:4]), 16, 32)
	if err != nil {
		return 0, false
	}
	return rune(v), true
}
