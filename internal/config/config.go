package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
)

// Defaults.
const (
	DefaultChunkSize          = "128 MiB"
	DefaultMultipartChunkSize = "32 MiB"
	DefaultArchiveClass       = "DEEP_ARCHIVE"
	DefaultHashWorkers        = 4
)

// Config represents the main configuration for serac.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Backup     BackupConfig     `toml:"backup"`
	Cache      CacheConfig      `toml:"cache"`
	Staging    StagingConfig    `toml:"staging"`
	Storage    StorageConfig    `toml:"storage"`
	Filesystem FilesystemConfig `toml:"filesystem"`
}

// BackupConfig holds the engine tunables.
type BackupConfig struct {
	ChunkSize   string `toml:"chunk_size"`   // e.g. "128 MiB"; sizes use go-humanize syntax
	HashWorkers int    `toml:"hash_workers"` // files hashed concurrently
}

// ChunkSizeBytes parses ChunkSize.
func (b BackupConfig) ChunkSizeBytes() (int64, error) {
	return ParseSize(b.ChunkSize)
}

// CacheConfig represents configuration for the local manifest cache.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type CacheConfig struct {
	Type string `toml:"type"`          // "sqlite" or "memory"
	Dir  string `toml:"dir,omitempty"` // only used for type=sqlite; one file per destination
}

// StagingConfig represents configuration for the staging area.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StagingConfig struct {
	Type       string `toml:"type"`                  // "memory" or "filesystem"
	StagingDir string `toml:"staging_dir,omitempty"` // only used for type=filesystem
}

// StorageConfig holds object storage settings shared by every destination.
// Empty credentials mean the ambient AWS credential chain.
type StorageConfig struct {
	Region             string `toml:"region,omitempty"`
	Endpoint           string `toml:"endpoint,omitempty"` // S3-compatible endpoint; required for minio://
	AccessKeyID        string `toml:"access_key_id,omitempty"`
	SecretAccessKey    string `toml:"secret_access_key,omitempty"`
	UseSSL             bool   `toml:"use_ssl"`
	ArchiveClass       string `toml:"archive_class"`        // storage class of archives
	MultipartChunkSize string `toml:"multipart_chunk_size"` // part size of multipart uploads
}

// MultipartChunkSizeBytes parses MultipartChunkSize.
func (s StorageConfig) MultipartChunkSizeBytes() (int64, error) {
	return ParseSize(s.MultipartChunkSize)
}

// FilesystemConfig holds filesystem-related settings.
type FilesystemConfig struct {
	Ignore []string `toml:"ignore"`
}

// NewConfig creates a Config rooted at baseDir with every default filled in.
func NewConfig(baseDir string) *Config {
	cfg := &Config{BaseDir: baseDir}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if c.LogDir == "" {
		c.LogDir = filepath.Join(c.BaseDir, "log")
	}
	if c.Backup.ChunkSize == "" {
		c.Backup.ChunkSize = DefaultChunkSize
	}
	if c.Backup.HashWorkers <= 0 {
		c.Backup.HashWorkers = DefaultHashWorkers
	}
	if c.Cache.Type == "" {
		c.Cache.Type = "sqlite"
	}
	if c.Cache.Type == "sqlite" && c.Cache.Dir == "" {
		c.Cache.Dir = filepath.Join(c.BaseDir, "cache")
	}
	if c.Staging.Type == "" {
		c.Staging.Type = "filesystem"
	}
	if c.Staging.Type == "filesystem" && c.Staging.StagingDir == "" {
		c.Staging.StagingDir = filepath.Join(c.BaseDir, "staging")
	}
	if c.Storage.ArchiveClass == "" {
		c.Storage.ArchiveClass = DefaultArchiveClass
	}
	if c.Storage.MultipartChunkSize == "" {
		c.Storage.MultipartChunkSize = DefaultMultipartChunkSize
	}
}

// Validate checks the values that cannot be checked by decoding alone.
func (c *Config) Validate() error {
	if _, err := c.Backup.ChunkSizeBytes(); err != nil {
		return fmt.Errorf("backup.chunk_size: %w", err)
	}
	if _, err := c.Storage.MultipartChunkSizeBytes(); err != nil {
		return fmt.Errorf("storage.multipart_chunk_size: %w", err)
	}
	switch c.Cache.Type {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("cache.type: unknown type %q", c.Cache.Type)
	}
	switch c.Staging.Type {
	case "filesystem", "memory":
	default:
		return fmt.Errorf("staging.type: unknown type %q", c.Staging.Type)
	}
	return nil
}

// ParseSize parses a positive byte size such as "128 MiB", "256MB" or "1048576".
func ParseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n == 0 || n > 1<<62 {
		return 0, fmt.Errorf("invalid size %q: out of range", s)
	}
	return int64(n), nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads the config at path, or uses defaults if there is no file.
// Unset fields are defaulted relative to baseDir unless the file sets base_dir.
func Load(path, baseDir string) (*Config, error) {
	cfg, err := ReadFromFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = &Config{}
	} else if err != nil {
		return nil, err
	}

	if cfg.BaseDir == "" {
		cfg.BaseDir = baseDir
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Credentials may end up in here.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
