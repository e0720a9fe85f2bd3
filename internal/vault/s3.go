package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"serac-go/internal/config"
	"serac-go/internal/serac"
)

// s3API is the subset of the S3 client used by S3Vault.
type s3API interface {
	s3.ListObjectsV2APIClient
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Vault stores a destination under a bucket and prefix in Amazon S3.
// Archives larger than the part size are sent as multipart uploads.
type S3Vault struct {
	client   s3API
	uploader *manager.Uploader
	bucket   string
	keys     keyspace
}

// NewS3Vault creates a vault for s3://bucket/prefix. Empty credentials in cfg
// fall back to the default AWS credential chain.
func NewS3Vault(ctx context.Context, bucket, prefix string, cfg config.StorageConfig) (*S3Vault, error) {
	partSize, err := cfg.MultipartChunkSizeBytes()
	if err != nil {
		return nil, fmt.Errorf("invalid multipart chunk size: %w", err)
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Vault(client, bucket, prefix, partSize), nil
}

func newS3Vault(client s3API, bucket, prefix string, partSize int64) *S3Vault {
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = max(partSize, manager.MinUploadPartSize)
	})
	return &S3Vault{
		client:   client,
		uploader: uploader,
		bucket:   bucket,
		keys:     newKeyspace(prefix),
	}
}

// List returns the objects whose key starts with prefix, sorted by key.
func (v *S3Vault) List(ctx context.Context, prefix string) ([]serac.ObjectInfo, error) {
	p := s3.NewListObjectsV2Paginator(v.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(v.bucket),
		Prefix: aws.String(v.keys.full(prefix)),
	})

	var out []serac.ObjectInfo
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing s3://%s/%s: %w", v.bucket, v.keys.full(prefix), err)
		}
		for _, obj := range page.Contents {
			key, ok := v.keys.relative(aws.ToString(obj.Key))
			if !ok {
				continue
			}
			info := serac.ObjectInfo{
				Key:          key,
				Size:         aws.ToInt64(obj.Size),
				StorageClass: serac.StorageClass(obj.StorageClass),
				ModifiedAt:   aws.ToTime(obj.LastModified),
			}
			if info.StorageClass == "" {
				info.StorageClass = serac.StorageClassStandard
			}
			out = append(out, info)
		}
	}
	slices.SortFunc(out, func(a, b serac.ObjectInfo) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}

// Get writes the object's content to w.
func (v *S3Vault) Get(ctx context.Context, key string, w io.Writer) error {
	out, err := v.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.keys.full(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return fmt.Errorf("%w: %s", serac.ErrObjectNotFound, key)
		}
		return fmt.Errorf("getting %s: %w", key, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}
	return nil
}

// Put uploads the object. The upload is conditional on the key not existing.
func (v *S3Vault) Put(ctx context.Context, key string, r io.Reader, size int64, class serac.StorageClass) error {
	full := v.keys.full(key)

	_, err := v.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(full),
	})
	if err == nil {
		return fmt.Errorf("%w: %s", serac.ErrObjectExists, key)
	}
	if !isS3NotFound(err) {
		return fmt.Errorf("checking %s: %w", key, err)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(v.bucket),
		Key:         aws.String(full),
		Body:        r,
		IfNoneMatch: aws.String("*"),
	}
	if class != "" {
		input.StorageClass = types.StorageClass(class)
	}
	if size < v.uploader.PartSize {
		input.ContentLength = aws.Int64(size)
	}

	if _, err := v.uploader.Upload(ctx, input); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed" {
			return fmt.Errorf("%w: %s", serac.ErrObjectExists, key)
		}
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

// ValidateSetup verifies that the bucket exists and is accessible.
func (v *S3Vault) ValidateSetup(ctx context.Context) error {
	if _, err := v.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(v.bucket)}); err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", v.bucket, err)
	}
	return nil
}

func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

// Compile-time check that S3Vault implements serac.Vault interface
var _ serac.Vault = (*S3Vault)(nil)
