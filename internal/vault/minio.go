package vault

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"serac-go/internal/config"
	"serac-go/internal/serac"
)

// MinioVault stores a destination in a MinIO (or other S3-compatible)
// bucket. MinIO only knows the STANDARD and REDUCED_REDUNDANCY classes;
// colder tiers are its lifecycle rules' business, so other classes are
// stored as STANDARD.
type MinioVault struct {
	client   *minio.Client
	bucket   string
	keys     keyspace
	partSize uint64
}

// NewMinioVault creates a vault for minio://bucket/prefix on cfg.Endpoint.
func NewMinioVault(bucket, prefix string, cfg config.StorageConfig) (*MinioVault, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio destination requires storage.endpoint to be set")
	}
	partSize, err := cfg.MultipartChunkSizeBytes()
	if err != nil {
		return nil, fmt.Errorf("invalid multipart chunk size: %w", err)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &MinioVault{
		client:   client,
		bucket:   bucket,
		keys:     newKeyspace(prefix),
		partSize: uint64(partSize),
	}, nil
}

// List returns the objects whose key starts with prefix, sorted by key.
func (v *MinioVault) List(ctx context.Context, prefix string) ([]serac.ObjectInfo, error) {
	var out []serac.ObjectInfo
	for obj := range v.client.ListObjects(ctx, v.bucket, minio.ListObjectsOptions{
		Prefix:    v.keys.full(prefix),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("listing %s/%s: %w", v.bucket, v.keys.full(prefix), obj.Err)
		}
		key, ok := v.keys.relative(obj.Key)
		if !ok {
			continue
		}
		class := serac.StorageClass(obj.StorageClass)
		if class == "" {
			class = serac.StorageClassStandard
		}
		out = append(out, serac.ObjectInfo{
			Key:          key,
			Size:         obj.Size,
			StorageClass: class,
			ModifiedAt:   obj.LastModified,
		})
	}
	slices.SortFunc(out, func(a, b serac.ObjectInfo) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}

// Get writes the object's content to w.
func (v *MinioVault) Get(ctx context.Context, key string, w io.Writer) error {
	obj, err := v.client.GetObject(ctx, v.bucket, v.keys.full(key), minio.GetObjectOptions{})
	if err != nil {
		return v.wrapNotFound(key, err)
	}
	defer obj.Close()

	// GetObject is lazy: a missing key only surfaces on the first read.
	if _, err := io.Copy(w, obj); err != nil {
		return v.wrapNotFound(key, err)
	}
	return nil
}

func (v *MinioVault) wrapNotFound(key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: %s", serac.ErrObjectNotFound, key)
	}
	return fmt.Errorf("getting %s: %w", key, err)
}

// Put uploads the object unless the key already exists.
func (v *MinioVault) Put(ctx context.Context, key string, r io.Reader, size int64, class serac.StorageClass) error {
	full := v.keys.full(key)

	_, err := v.client.StatObject(ctx, v.bucket, full, minio.StatObjectOptions{})
	if err == nil {
		return fmt.Errorf("%w: %s", serac.ErrObjectExists, key)
	}
	if minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return fmt.Errorf("checking %s: %w", key, err)
	}

	opts := minio.PutObjectOptions{
		ContentType:  contentType(key),
		StorageClass: minioStorageClass(class),
		PartSize:     v.partSize,
	}
	if _, err := v.client.PutObject(ctx, v.bucket, full, r, size, opts); err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

// ValidateSetup verifies that the bucket exists.
func (v *MinioVault) ValidateSetup(ctx context.Context) error {
	exists, err := v.client.BucketExists(ctx, v.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", v.bucket, err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", v.bucket)
	}
	return nil
}

func minioStorageClass(class serac.StorageClass) string {
	switch class {
	case serac.StorageClassStandard, "REDUCED_REDUNDANCY":
		return string(class)
	default:
		return string(serac.StorageClassStandard)
	}
}

func contentType(key string) string {
	switch {
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	case strings.HasSuffix(key, ".csv"):
		return "text/csv"
	case strings.HasSuffix(key, ".tar"):
		return "application/x-tar"
	default:
		return "application/octet-stream"
	}
}

// Compile-time check that MinioVault implements serac.Vault interface
var _ serac.Vault = (*MinioVault)(nil)
