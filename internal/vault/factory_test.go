package vault

import (
	"context"
	"path/filepath"
	"testing"

	"serac-go/internal/config"
)

func TestParseDestination(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Destination
		wantErr bool
	}{
		{
			name: "s3 with prefix",
			raw:  "s3://my-bucket/photos/2024/",
			want: Destination{Scheme: "s3", Bucket: "my-bucket", Prefix: "photos/2024"},
		},
		{
			name: "s3 bucket root",
			raw:  "s3://my-bucket",
			want: Destination{Scheme: "s3", Bucket: "my-bucket"},
		},
		{
			name: "minio",
			raw:  "minio://backups/laptop",
			want: Destination{Scheme: "minio", Bucket: "backups", Prefix: "laptop"},
		},
		{
			name: "file",
			raw:  "file:///srv/backup",
			want: Destination{Scheme: "file", Path: "/srv/backup"},
		},
		{
			name: "memory",
			raw:  "memory://test",
			want: Destination{Scheme: "memory"},
		},
		{name: "s3 without bucket", raw: "s3:///prefix", wantErr: true},
		{name: "relative file", raw: "file://relative/dir", wantErr: true},
		{name: "unknown scheme", raw: "gs://bucket", wantErr: true},
		{name: "no scheme", raw: "/srv/backup", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDestination(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDestination() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Scheme != tt.want.Scheme || got.Bucket != tt.want.Bucket ||
				got.Prefix != tt.want.Prefix || got.Path != tt.want.Path {
				t.Errorf("ParseDestination() = %+v, want %+v", got, tt.want)
			}
			if got.String() != tt.raw {
				t.Errorf("String() = %q, want %q", got.String(), tt.raw)
			}
		})
	}
}

func TestDestination_HonorsStorageClass(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"s3://b", true},
		{"memory://m", true},
		{"minio://b", false},
		{"file:///tmp/x", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			d, err := ParseDestination(tt.raw)
			if err != nil {
				t.Fatal(err)
			}
			if got := d.HonorsStorageClass(); got != tt.want {
				t.Errorf("HonorsStorageClass() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewVaultFromDestination(t *testing.T) {
	storage := config.NewConfig(t.TempDir()).Storage

	tests := []struct {
		name    string
		raw     string
		storage config.StorageConfig
		wantErr bool
	}{
		{name: "memory vault", raw: "memory://test", storage: storage},
		{name: "filesystem vault", raw: "file://" + filepath.ToSlash(filepath.Join(t.TempDir(), "vault")), storage: storage},
		{name: "minio without endpoint", raw: "minio://bucket", storage: storage, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseDestination(tt.raw)
			if err != nil {
				t.Fatal(err)
			}
			got, err := NewVaultFromDestination(context.Background(), d, tt.storage)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewVaultFromDestination() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if got != nil {
					t.Error("expected nil vault on error")
				}
				return
			}
			if err := got.ValidateSetup(context.Background()); err != nil {
				t.Errorf("ValidateSetup() error = %v", err)
			}
		})
	}
}

func TestKeyspace(t *testing.T) {
	tests := []struct {
		prefix string
		key    string
		full   string
	}{
		{"", "db/a.json", "db/a.json"},
		{"photos", "db/a.json", "photos/db/a.json"},
		{"/photos/2024/", "data/a.tar", "photos/2024/data/a.tar"},
	}
	for _, tt := range tests {
		k := newKeyspace(tt.prefix)
		if got := k.full(tt.key); got != tt.full {
			t.Errorf("newKeyspace(%q).full(%q) = %q, want %q", tt.prefix, tt.key, got, tt.full)
		}
		rel, ok := k.relative(tt.full)
		if !ok || rel != tt.key {
			t.Errorf("relative(%q) = %q, %v", tt.full, rel, ok)
		}
	}

	if _, ok := newKeyspace("photos").relative("videos/db/a.json"); ok {
		t.Error("relative() should reject keys outside the prefix")
	}
}
