package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileCache implements Cache as a single JSON document on disk, so a
// persisted session survives process restarts without an external store.
type FileCache struct {
	mu   sync.Mutex
	path string
}

type fileEntry struct {
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// NewFileCache creates a file-backed cache at path, creating parent
// directories as needed
func NewFileCache(path string) (*FileCache, error) {
	if path == "" {
		return nil, errors.New("file cache path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileCache{path: path}, nil
}

// Get retrieves a value from cache
func (f *FileCache) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.load()
	if err != nil {
		return nil, err
	}
	entry, ok := entries[key]
	if !ok || (!entry.ExpiresAt.IsZero() && time.Now().After(entry.ExpiresAt)) {
		return nil, ErrCacheMiss
	}
	return entry.Value, nil
}

// Set stores a value in cache
func (f *FileCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.load()
	if err != nil {
		// A corrupt file is replaced rather than blocking new writes
		entries = make(map[string]fileEntry)
	}
	entry := fileEntry{Value: value}
	if ttl > 0 {
		entry.ExpiresAt = time.Now().Add(ttl)
	}
	entries[key] = entry
	return f.store(entries)
}

// Delete removes a value from cache
func (f *FileCache) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.load()
	if err != nil {
		entries = make(map[string]fileEntry)
	}
	delete(entries, key)
	return f.store(entries)
}

// Close is a no-op; every write is flushed immediately
func (f *FileCache) Close() error {
	return nil
}

func (f *FileCache) load() (map[string]fileEntry, error) {
	entries := make(map[string]fileEntry)
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode cache file: %w", err)
	}
	return entries, nil
}

func (f *FileCache) store(entries map[string]fileEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode cache file: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}
