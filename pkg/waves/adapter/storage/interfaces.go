// Package storage defines the object storage executors the history exporter
// uploads through. Backends live in the local, s3 and gcs sub-packages and
// contribute a StorageProvider to the "storage_providers" fx group.
package storage

import (
	"context"
	"errors"
	"io"
)

// StorageProviderGroup is the fx value group the backend modules provide into.
const StorageProviderGroup = "storage_providers"

var (
	// ErrObjectNotFound is returned when the object does not exist.
	ErrObjectNotFound = errors.New("object not found")
	// ErrBucketNotFound is returned when the bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")
	// ErrAccessDenied is returned when the credentials do not allow the operation.
	ErrAccessDenied = errors.New("access denied")
)

// StorageExecutor defines generic storage operations. An empty bucket means
// the bucket_name of the connection configuration.
type StorageExecutor interface {
	// Upload writes data to bucket/objectName.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download opens bucket/objectName. The caller closes the reader.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for every object under prefix; an error from fn stops the listing.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject removes bucket/objectName. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// StorageConnection is a named, open storage backend.
type StorageConnection interface {
	StorageExecutor
	Name() string
	Type() string
	Close() error
}

// StorageProvider manages the connections of one backend type.
type StorageProvider interface {
	GetConnection(ctx context.Context, name string) (StorageConnection, error)
	ForceReconnect(ctx context.Context, name string) (StorageConnection, error)
	CloseAll() error
	Type() string
}

// StorageConnectionResolver resolves a configured storage connection by name.
type StorageConnectionResolver interface {
	ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error)
}
