package videocache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSStore is the durable tier backed by a single object in a Google Cloud
// Storage bucket, for deployments without a persistent disk.
type GCSStore struct {
	client *storage.Client
	bucket string
	object string
}

// NewGCSStore creates a GCS-backed durable tier.
func NewGCSStore(client *storage.Client, bucket, object string) (*GCSStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if object == "" {
		object = "video-metadata-cache.json"
	}
	return &GCSStore{client: client, bucket: bucket, object: object}, nil
}

// Load reads the cache object. A missing or unparseable object is a miss.
func (s *GCSStore) Load(ctx context.Context) (Entry, error) {
	reader, err := s.client.Bucket(s.bucket).Object(s.object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return Entry{}, ErrNotCached
		}
		return Entry{}, fmt.Errorf("open cache object: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return Entry{}, fmt.Errorf("read cache object: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, ErrNotCached
	}
	return entry, nil
}

// Save replaces the cache object. GCS object writes are atomic on Close.
func (s *GCSStore) Save(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	writer := s.client.Bucket(s.bucket).Object(s.object).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("write cache object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write cache object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close cache writer: %w", err)
	}
	return nil
}
