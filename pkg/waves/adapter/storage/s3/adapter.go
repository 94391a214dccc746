// Package s3 stores objects in Amazon S3 or an S3-compatible endpoint
// (MinIO, Wasabi, Cloudflare R2).
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/tigerroll/waves/pkg/waves/adapter/storage"
	storageconfig "github.com/tigerroll/waves/pkg/waves/adapter/storage/config"
	config "github.com/tigerroll/waves/pkg/waves/core/config"
	"github.com/tigerroll/waves/pkg/waves/support/util/logger"
)

// ProviderType is the storage type served by this package.
const ProviderType = "s3"

// defaultRegion applies to custom endpoints that name no region.
const defaultRegion = "us-east-1"

// Client is the subset of the S3 API the adapter uses.
type Client interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Adapter implements storage.StorageConnection over an S3 client.
type Adapter struct {
	client Client
	cfg    storageconfig.StorageConfig
	name   string
}

var _ storage.StorageConnection = (*Adapter)(nil)

// NewAdapter wraps an existing client.
func NewAdapter(client Client, cfg storageconfig.StorageConfig, name string) *Adapter {
	return &Adapter{client: client, cfg: cfg, name: name}
}

// Open builds an S3 client from cfg. Static credentials are used when both
// keys are set; otherwise the SDK default chain resolves them.
func Open(ctx context.Context, cfg storageconfig.StorageConfig, name string) (storage.StorageConnection, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("s3 storage '%s': failed to load AWS config: %w", name, err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	logger.Debugf("Opened s3 storage '%s' (region=%s, endpoint=%q).", name, awsCfg.Region, cfg.Endpoint)
	return NewAdapter(client, cfg, name), nil
}

// NewProvider returns the S3 StorageProvider.
func NewProvider(cfg *config.Config) storage.StorageProvider {
	return storage.NewBaseProvider(cfg, ProviderType, Open)
}

func loadAWSConfig(ctx context.Context, cfg storageconfig.StorageConfig) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	if awsCfg.Region == "" && cfg.Endpoint != "" {
		awsCfg.Region = defaultRegion
	}
	return awsCfg, nil
}

func (a *Adapter) Close() error { return nil }
func (a *Adapter) Type() string { return ProviderType }
func (a *Adapter) Name() string { return a.name }

func (a *Adapter) bucket(bucket string) string {
	if bucket == "" {
		return a.cfg.BucketName
	}
	return bucket
}

// Upload puts the object. Non-seekable readers are buffered first since the
// SDK signs the payload.
func (a *Adapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	body, ok := data.(io.ReadSeeker)
	if !ok {
		buf, err := io.ReadAll(data)
		if err != nil {
			return fmt.Errorf("failed to buffer upload of '%s': %w", objectName, err)
		}
		body = bytes.NewReader(buf)
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(a.bucket(bucket)),
		Key:    aws.String(objectName),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := a.client.PutObject(ctx, input); err != nil {
		return a.wrapError("Upload", bucket, objectName, err)
	}
	logger.Debugf("Uploaded s3://%s/%s (storage '%s').", a.bucket(bucket), objectName, a.name)
	return nil
}

// Download returns the object body.
func (a *Adapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket(bucket)),
		Key:    aws.String(objectName),
	})
	if err != nil {
		return nil, a.wrapError("Download", bucket, objectName, err)
	}
	return out.Body, nil
}

// ListObjects pages through ListObjectsV2.
func (a *Adapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(a.bucket(bucket))}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	paginator := s3.NewListObjectsV2Paginator(a.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return a.wrapError("ListObjects", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			if err := fn(aws.ToString(obj.Key)); err != nil {
				return err
			}
		}
	}
	return nil
}

// DeleteObject removes the object. S3 reports success for missing keys.
func (a *Adapter) DeleteObject(ctx context.Context, bucket, objectName string) error {
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket(bucket)),
		Key:    aws.String(objectName),
	})
	if err != nil {
		wrapped := a.wrapError("DeleteObject", bucket, objectName, err)
		if errors.Is(wrapped, storage.ErrObjectNotFound) {
			return nil
		}
		return wrapped
	}
	return nil
}

// wrapError maps S3 errors onto the storage sentinels.
func (a *Adapter) wrapError(op, bucket, key string, err error) error {
	target := fmt.Sprintf("s3://%s/%s", a.bucket(bucket), key)

	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket
	switch {
	case errors.As(err, &notFound), errors.As(err, &noSuchKey):
		return fmt.Errorf("%s %s: %w", op, target, storage.ErrObjectNotFound)
	case errors.As(err, &noSuchBucket):
		return fmt.Errorf("%s %s: %w", op, target, storage.ErrBucketNotFound)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%s %s: %w", op, target, storage.ErrObjectNotFound)
		case "NoSuchBucket":
			return fmt.Errorf("%s %s: %w", op, target, storage.ErrBucketNotFound)
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("%s %s: %w: %v", op, target, storage.ErrAccessDenied, err)
		}
	}
	return fmt.Errorf("%s %s: %w", op, target, err)
}
