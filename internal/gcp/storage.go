package gcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// BucketStore wraps the public assets bucket that holds generated page
// images and narration audio. Object paths are derived from storybook and
// page identity, so repeated generation attempts for the same page
// overwrite the same object rather than accumulating blobs.
type BucketStore struct {
	bucket     *storage.BucketHandle
	bucketName string
}

// NewBucketStore wraps a storage client for the given bucket.
func NewBucketStore(client *storage.Client, bucketName string) *BucketStore {
	return &BucketStore{
		bucket:     client.Bucket(bucketName),
		bucketName: bucketName,
	}
}

// Upload writes data to the named object with the given content type,
// replacing any existing object at that path.
func (s *BucketStore) Upload(ctx context.Context, objectName, contentType string, data []byte) error {
	writer := s.bucket.Object(objectName).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write to GCS object %s: %w", objectName, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize GCS write for %s: %w", objectName, err)
	}
	return nil
}

// PublicURL returns the publicly reachable URL for an object in the
// bucket. The assets bucket is configured for public read access.
func (s *BucketStore) PublicURL(objectName string) string {
	if s.bucketName == "" || objectName == "" {
		return ""
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucketName, objectName)
}
