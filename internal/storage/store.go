// Package storage abstracts the object store holding published layer
// files.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/azureblob" // azblob:// driver
	_ "gocloud.dev/blob/fileblob"  // file:// driver
	_ "gocloud.dev/blob/s3blob"    // s3:// driver
	"gocloud.dev/gcerrors"

	"github.com/spatial-data-tools/stac-manager/internal/config"
)

// Store abstracts uploading and deleting layer blobs.
type Store interface {
	// Upload writes the file at localPath under key and returns the
	// public URL of the blob.
	Upload(ctx context.Context, key, localPath string) (string, error)

	// Delete removes the blob named by a key or by its public URL.
	// Deleting an absent blob is not an error.
	Delete(ctx context.Context, urlOrKey string) error

	// Exists reports whether a blob is present under key.
	Exists(ctx context.Context, key string) (bool, error)

	// URL returns the public URL a key resolves to.
	URL(key string) string

	// Close releases the underlying bucket.
	Close() error
}

// BlobStore is a Store on a gocloud.dev bucket. The bucket URL selects
// the backend: azblob://container, s3://bucket or file:///dir.
type BlobStore struct {
	bucket     *blob.Bucket
	publicBase string
}

// Open connects to the bucket named by cfg.
func Open(ctx context.Context, cfg config.StorageConfig) (*BlobStore, error) {
	if cfg.BucketURL == "" {
		return nil, fmt.Errorf("storage.bucket_url is not configured")
	}

	bucket, err := blob.OpenBucket(ctx, cfg.BucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", cfg.BucketURL, err)
	}

	return &BlobStore{
		bucket:     bucket,
		publicBase: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
	}, nil
}

// Upload streams localPath into the bucket under key.
func (s *BlobStore) Upload(ctx context.Context, key, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	w, err := s.bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return "", fmt.Errorf("create writer for %s: %w", key, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close writer for %s: %w", key, err)
	}

	return s.URL(key), nil
}

// Delete removes a blob, tolerating blobs that are already gone.
func (s *BlobStore) Delete(ctx context.Context, urlOrKey string) error {
	key := s.Key(urlOrKey)
	err := s.bucket.Delete(ctx, key)
	if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Exists checks for a blob under key.
func (s *BlobStore) Exists(ctx context.Context, key string) (bool, error) {
	return s.bucket.Exists(ctx, key)
}

// URL maps a key onto the configured public base URL.
func (s *BlobStore) URL(key string) string {
	return s.publicBase + "/" + strings.TrimPrefix(key, "/")
}

// Key is the inverse of URL: it strips the public base from a blob URL,
// passing plain keys through unchanged.
func (s *BlobStore) Key(urlOrKey string) string {
	if s.publicBase != "" && strings.HasPrefix(urlOrKey, s.publicBase+"/") {
		return strings.TrimPrefix(urlOrKey, s.publicBase+"/")
	}
	return strings.TrimPrefix(urlOrKey, "/")
}

// Close releases the bucket connection.
func (s *BlobStore) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}
