package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"

	"github.com/bridgeml/bridge/pkg/config"
)

// MinioStore implements ObjectStore against a MinIO (or S3-compatible) server
type MinioStore struct {
	client *minio.Client
}

// NewMinioStore connects to the configured MinIO endpoint
func NewMinioStore(cfg *config.StorageConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	log.Info().Str("endpoint", cfg.Endpoint).Msg("minio storage initialized")
	return &MinioStore{client: client}, nil
}

// PutObject uploads the file at localPath under bucket/key, creating the
// bucket on first use
func (m *MinioStore) PutObject(ctx context.Context, bucket, key, localPath string) error {
	startTime := time.Now()

	if err := m.EnsureBucket(ctx, bucket); err != nil {
		return err
	}

	info, err := m.client.FPutObject(ctx, bucket, key, localPath, minio.PutObjectOptions{})
	if err != nil {
		log.Error().Err(err).Str("bucket", bucket).Str("key", key).Msg("failed to put object")
		return fmt.Errorf("failed to put object %s/%s: %w", bucket, key, err)
	}

	log.Info().
		Str("bucket", bucket).
		Str("key", key).
		Int64("size", info.Size).
		Dur("duration", time.Since(startTime)).
		Msg("object stored")

	return nil
}

// GetObject returns the full content of bucket/key
func (m *MinioStore) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s/%s: %w", bucket, key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		log.Error().Err(err).Str("bucket", bucket).Str("key", key).Msg("failed to read object")
		return nil, fmt.Errorf("failed to read object %s/%s: %w", bucket, key, err)
	}

	return data, nil
}

// ListObjects returns keys under the prefix. Non-recursive listings include
// simulated directories as prefix entries with a trailing slash.
func (m *MinioStore) ListObjects(ctx context.Context, bucket, prefix string, recursive bool) ([]string, error) {
	var keys []string

	for obj := range m.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: recursive,
	}) {
		if obj.Err != nil {
			log.Error().Err(obj.Err).Str("bucket", bucket).Str("prefix", prefix).Msg("failed to list objects")
			return nil, fmt.Errorf("failed to list objects %s/%s: %w", bucket, prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}

	return keys, nil
}

// DeleteObject removes bucket/key
func (m *MinioStore) DeleteObject(ctx context.Context, bucket, key string) error {
	if err := m.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		log.Error().Err(err).Str("bucket", bucket).Str("key", key).Msg("failed to delete object")
		return fmt.Errorf("failed to delete object %s/%s: %w", bucket, key, err)
	}
	return nil
}

// BucketExists checks whether the bucket exists
func (m *MinioStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	exists, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return false, fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}
	return exists, nil
}

// EnsureBucket creates the bucket if it does not exist
func (m *MinioStore) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := m.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if err := m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}

	log.Info().Str("bucket", bucket).Msg("bucket created")
	return nil
}
