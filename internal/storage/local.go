package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// LocalStore implements ObjectStore on the local filesystem, mainly for
// tests and single-node development. Buckets are directories under basePath
// and keys are slash-separated relative paths.
type LocalStore struct {
	basePath string
	mutex    sync.RWMutex // For concurrent access safety
}

// NewLocalStore creates a filesystem-backed object store rooted at basePath
func NewLocalStore(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		log.Error().Err(err).Str("path", basePath).Msg("failed to create storage directory")
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	log.Info().Str("path", basePath).Msg("local object storage initialized")
	return &LocalStore{basePath: basePath}, nil
}

// PutObject copies the file at localPath under bucket/key with an atomic
// rename so a concurrent reader never observes a partial object
func (ls *LocalStore) PutObject(ctx context.Context, bucket, key, localPath string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	ls.mutex.Lock()
	defer ls.mutex.Unlock()

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer src.Close()

	fullPath := ls.objectPath(bucket, key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempPath := fullPath + ".tmp"
	tempFile, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer func() {
		tempFile.Close()
		os.Remove(tempPath)
	}()

	bytesWritten, err := io.Copy(tempFile, src)
	if err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync object: %w", err)
	}
	tempFile.Close()

	if err := os.Rename(tempPath, fullPath); err != nil {
		return fmt.Errorf("failed to move object into place: %w", err)
	}

	log.Debug().
		Str("bucket", bucket).
		Str("key", key).
		Int64("size", bytesWritten).
		Msg("object stored")

	return nil
}

// GetObject returns the full content of bucket/key
func (ls *LocalStore) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	ls.mutex.RLock()
	defer ls.mutex.RUnlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(ls.objectPath(bucket, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object not found: %s/%s", bucket, key)
		}
		return nil, fmt.Errorf("failed to read object %s/%s: %w", bucket, key, err)
	}

	return data, nil
}

// ListObjects returns keys under the prefix. Non-recursive listings collapse
// deeper keys into their first path segment after the prefix, with a
// trailing slash, matching object-store common-prefix semantics.
func (ls *LocalStore) ListObjects(ctx context.Context, bucket, prefix string, recursive bool) ([]string, error) {
	ls.mutex.RLock()
	defer ls.mutex.RUnlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	bucketPath := filepath.Join(ls.basePath, bucket)
	if _, err := os.Stat(bucketPath); os.IsNotExist(err) {
		return nil, nil
	}

	var all []string
	err := filepath.Walk(bucketPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(bucketPath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			all = append(all, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects %s/%s: %w", bucket, prefix, err)
	}

	if recursive {
		sort.Strings(all)
		return all, nil
	}

	seen := make(map[string]bool)
	var keys []string
	for _, key := range all {
		rest := strings.TrimPrefix(key, prefix)
		if idx := strings.Index(rest, "/"); idx != -1 {
			key = prefix + rest[:idx+1]
		}
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// DeleteObject removes bucket/key
func (ls *LocalStore) DeleteObject(ctx context.Context, bucket, key string) error {
	ls.mutex.Lock()
	defer ls.mutex.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := os.Remove(ls.objectPath(bucket, key)); err != nil {
		if os.IsNotExist(err) {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete object %s/%s: %w", bucket, key, err)
	}

	return nil
}

// BucketExists checks whether the bucket directory exists
func (ls *LocalStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	ls.mutex.RLock()
	defer ls.mutex.RUnlock()

	info, err := os.Stat(filepath.Join(ls.basePath, bucket))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}
	return info.IsDir(), nil
}

// EnsureBucket creates the bucket directory if it does not exist
func (ls *LocalStore) EnsureBucket(ctx context.Context, bucket string) error {
	ls.mutex.Lock()
	defer ls.mutex.Unlock()

	if err := os.MkdirAll(filepath.Join(ls.basePath, bucket), 0755); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	return nil
}

func (ls *LocalStore) objectPath(bucket, key string) string {
	return filepath.Join(ls.basePath, bucket, filepath.FromSlash(key))
}
