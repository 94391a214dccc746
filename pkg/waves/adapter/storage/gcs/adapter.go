// Package gcs stores objects in Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	gcstorage "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/tigerroll/waves/pkg/waves/adapter/storage"
	storageconfig "github.com/tigerroll/waves/pkg/waves/adapter/storage/config"
	config "github.com/tigerroll/waves/pkg/waves/core/config"
	"github.com/tigerroll/waves/pkg/waves/support/util/logger"
)

// ProviderType is the storage type served by this package.
const ProviderType = "gcs"

// Adapter implements storage.StorageConnection over a GCS client.
type Adapter struct {
	client *gcstorage.Client
	cfg    storageconfig.StorageConfig
	name   string
}

var _ storage.StorageConnection = (*Adapter)(nil)

// ClientOptions translates cfg into client options. A custom endpoint
// without a credentials file targets an emulator and skips authentication.
func ClientOptions(cfg storageconfig.StorageConfig) []option.ClientOption {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
		if cfg.CredentialsFile == "" {
			opts = append(opts, option.WithoutAuthentication())
		}
	}
	return opts
}

// Open creates the GCS client.
func Open(ctx context.Context, cfg storageconfig.StorageConfig, name string) (storage.StorageConnection, error) {
	client, err := gcstorage.NewClient(ctx, ClientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("gcs storage '%s': failed to create client: %w", name, err)
	}
	return &Adapter{client: client, cfg: cfg, name: name}, nil
}

// NewProvider returns the GCS StorageProvider.
func NewProvider(cfg *config.Config) storage.StorageProvider {
	return storage.NewBaseProvider(cfg, ProviderType, Open)
}

func (a *Adapter) Type() string { return ProviderType }
func (a *Adapter) Name() string { return a.name }

// Close releases the client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

func (a *Adapter) object(bucket, objectName string) *gcstorage.ObjectHandle {
	if bucket == "" {
		bucket = a.cfg.BucketName
	}
	return a.client.Bucket(bucket).Object(objectName)
}

// Upload streams data into a new object version.
func (a *Adapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	w := a.object(bucket, objectName).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write gcs object '%s': %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return a.wrapError("Upload", objectName, err)
	}
	logger.Debugf("Uploaded gcs object '%s' (storage '%s').", objectName, a.name)
	return nil
}

// Download opens a reader on the object.
func (a *Adapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	r, err := a.object(bucket, objectName).NewReader(ctx)
	if err != nil {
		return nil, a.wrapError("Download", objectName, err)
	}
	return r, nil
}

// ListObjects iterates the objects under prefix.
func (a *Adapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	if bucket == "" {
		bucket = a.cfg.BucketName
	}
	it := a.client.Bucket(bucket).Objects(ctx, &gcstorage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return a.wrapError("ListObjects", prefix, err)
		}
		if err := fn(attrs.Name); err != nil {
			return err
		}
	}
}

// DeleteObject removes the object. A missing object is not an error.
func (a *Adapter) DeleteObject(ctx context.Context, bucket, objectName string) error {
	err := a.object(bucket, objectName).Delete(ctx)
	if err == nil || errors.Is(err, gcstorage.ErrObjectNotExist) {
		return nil
	}
	return a.wrapError("DeleteObject", objectName, err)
}

func (a *Adapter) wrapError(op, key string, err error) error {
	switch {
	case errors.Is(err, gcstorage.ErrObjectNotExist):
		return fmt.Errorf("%s %s: %w", op, key, storage.ErrObjectNotFound)
	case errors.Is(err, gcstorage.ErrBucketNotExist):
		return fmt.Errorf("%s %s: %w", op, key, storage.ErrBucketNotFound)
	}
	return fmt.Errorf("%s %s: %w", op, key, err)
}
