package videocache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore is the durable tier backed by a single JSON document on local
// disk.
type FileStore struct {
	path string
}

// NewFileStore creates the store, ensuring the parent directory exists.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("cache file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Load reads the cache document. A missing or unparseable file is a miss.
func (s *FileStore) Load(_ context.Context) (Entry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Entry{}, ErrNotCached
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, ErrNotCached
	}
	return entry, nil
}

// Save writes the document atomically via a temp file and rename, so a crash
// mid-write never leaves a corrupt cache behind.
func (s *FileStore) Save(_ context.Context, entry Entry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("write cache temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace cache file: %w", err)
	}
	return nil
}
