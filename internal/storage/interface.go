package storage

import "context"

// ObjectStore defines the interface for bucket/key object storage.
// Directories are simulated with /-delimited key prefixes; a non-recursive
// listing returns only the first path segment after the prefix, with a
// trailing slash for simulated directories.
type ObjectStore interface {
	// PutObject uploads the file at localPath under bucket/key
	PutObject(ctx context.Context, bucket, key, localPath string) error

	// GetObject returns the full content of bucket/key
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)

	// ListObjects returns keys under the prefix
	ListObjects(ctx context.Context, bucket, prefix string, recursive bool) ([]string, error)

	// DeleteObject removes bucket/key
	DeleteObject(ctx context.Context, bucket, key string) error

	// BucketExists checks whether the bucket exists
	BucketExists(ctx context.Context, bucket string) (bool, error)

	// EnsureBucket creates the bucket if it does not exist
	EnsureBucket(ctx context.Context, bucket string) error
}
