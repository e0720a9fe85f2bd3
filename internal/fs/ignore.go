package fs

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
)

// IgnoreFileName is the per-tree ignore file, read from the backup root.
const IgnoreFileName = ".seracignore"

// defaultIgnorePatterns are always applied regardless of config or ignore file.
var defaultIgnorePatterns = []string{"/" + IgnoreFileName}

// ignorePattern is a parsed ignore pattern with its matching strategy.
type ignorePattern struct {
	pattern   string
	matchPath bool // match against the whole relative name instead of the basename
	dirOnly   bool // pattern ended with '/': matches directories only
}

// IgnoreMatcher decides which names of a scanned tree are skipped.
//
//   - "*.tmp"      matches the basename at any depth
//   - "cache/"     matches directories only; their whole subtree is skipped
//   - "raw/*.cr2"  contains '/', so it matches the name relative to the root
//   - "/todo.txt"  a leading '/' anchors a basename pattern at the root
//
// Names are slash-separated and relative to the root.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher creates an IgnoreMatcher from raw pattern strings.
// Blank lines and lines starting with '#' are skipped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	var patterns []ignorePattern
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}

		p := ignorePattern{}
		if strings.HasSuffix(raw, "/") {
			p.dirOnly = true
			raw = strings.TrimRight(raw, "/")
		}
		if strings.HasPrefix(raw, "/") {
			p.matchPath = true
			raw = strings.TrimLeft(raw, "/")
		}
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p.matchPath = true
		}
		p.pattern = raw
		patterns = append(patterns, p)
	}
	return &IgnoreMatcher{patterns: patterns}
}

// Match reports whether the file with the given relative name is ignored.
func (m *IgnoreMatcher) Match(name string) bool {
	return m.match(name, false)
}

// MatchDir reports whether the directory with the given relative name is
// ignored, along with everything below it.
func (m *IgnoreMatcher) MatchDir(name string) bool {
	return m.match(name, true)
}

func (m *IgnoreMatcher) match(name string, isDir bool) bool {
	if name == "" {
		return false
	}
	base := path.Base(name)

	for _, p := range m.patterns {
		if p.dirOnly && !isDir {
			continue
		}
		target := base
		if p.matchPath {
			target = name
		}
		// path.Match only fails on malformed patterns, which never match.
		if ok, _ := path.Match(p.pattern, target); ok {
			return true
		}
	}
	return false
}

// ParseIgnoreFile reads an ignore file and returns its raw lines.
// Returns nil and no error if the file does not exist.
func ParseIgnoreFile(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return lines, nil
}
