package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"serac-go/internal/config"
)

// NewDatabaseFromConfig opens the cache of one destination based on the
// cache config type.
func NewDatabaseFromConfig(cfg config.CacheConfig, destination string) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("dir required for sqlite cache")
		}
		if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
		return NewSQLiteDatabase(CachePath(cfg.Dir, destination))
	case "memory":
		return NewSQLiteDatabase(":memory:")
	default:
		return nil, fmt.Errorf("unknown cache type: %s", cfg.Type)
	}
}

// CachePath returns the cache file of destination inside dir. Every
// character of the destination URL that is not a letter or a digit becomes
// an underscore.
func CachePath(dir, destination string) string {
	sane := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, destination)
	return filepath.Join(dir, sane+".db")
}
