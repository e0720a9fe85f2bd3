package vault

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"serac-go/internal/config"
	"serac-go/internal/serac"
)

// Destination is a parsed destination URL:
//
//	s3://bucket/prefix
//	minio://bucket/prefix
//	file:///path/to/dir
//	memory://name
type Destination struct {
	Scheme string
	Bucket string // s3 and minio
	Prefix string // s3 and minio; no leading or trailing slash
	Path   string // file
	raw    string
}

// ParseDestination parses a destination URL.
func ParseDestination(raw string) (Destination, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Destination{}, fmt.Errorf("invalid destination %q: %w", raw, err)
	}

	d := Destination{Scheme: u.Scheme, raw: raw}
	switch u.Scheme {
	case "s3", "minio":
		if u.Host == "" {
			return Destination{}, fmt.Errorf("destination %q has no bucket", raw)
		}
		d.Bucket = u.Host
		d.Prefix = strings.Trim(u.Path, "/")
	case "file":
		if u.Host != "" {
			return Destination{}, fmt.Errorf("file destination %q must be an absolute path (file:///...)", raw)
		}
		if u.Path == "" {
			return Destination{}, fmt.Errorf("destination %q has no path", raw)
		}
		d.Path = u.Path
	case "memory":
	default:
		return Destination{}, fmt.Errorf("unsupported destination scheme %q", u.Scheme)
	}
	return d, nil
}

// String returns the URL the destination was parsed from.
func (d Destination) String() string {
	return d.raw
}

// HonorsStorageClass reports whether objects keep the storage class they
// are uploaded with.
func (d Destination) HonorsStorageClass() bool {
	return d.Scheme == "s3" || d.Scheme == "memory"
}

// NewVaultFromDestination creates the Vault implementation for d.
func NewVaultFromDestination(ctx context.Context, d Destination, cfg config.StorageConfig) (serac.Vault, error) {
	switch d.Scheme {
	case "s3":
		return NewS3Vault(ctx, d.Bucket, d.Prefix, cfg)
	case "minio":
		return NewMinioVault(d.Bucket, d.Prefix, cfg)
	case "file":
		return NewFileSystemVault(d.Path)
	case "memory":
		return NewMemoryVault(), nil
	default:
		return nil, fmt.Errorf("unsupported destination scheme %q", d.Scheme)
	}
}

// keyspace maps destination-relative keys to bucket keys under a prefix.
type keyspace struct {
	prefix string // "" or ends with "/"
}

func newKeyspace(prefix string) keyspace {
	p := strings.Trim(prefix, "/")
	if p != "" {
		p += "/"
	}
	return keyspace{prefix: p}
}

func (k keyspace) full(key string) string {
	return k.prefix + key
}

func (k keyspace) relative(full string) (string, bool) {
	return strings.CutPrefix(full, k.prefix)
}
