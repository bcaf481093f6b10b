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
)

// FileStore is a durable Store backed by a single JSON document. Every Set
// rewrites the document through a temporary file and an atomic rename, so a
// crash leaves either the old or the new contents on disk.
type FileStore struct {
	path    string
	entries map[string][]byte
	mutex   sync.RWMutex
}

// OpenFileStore loads the store at path. A missing file yields an empty store;
// the file and its directory are created on first write.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:    path,
		entries: make(map[string][]byte),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store %s: %w", path, err)
	}
	if len(data) == 0 {
		return s, nil
	}

	if err := json.Unmarshal(data, &s.entries); err != nil {
		return nil, fmt.Errorf("failed to decode store %s: %w", path, err)
	}
	return s, nil
}

// Get retrieves the value stored under key
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	value, exists := s.entries[key]
	if !exists {
		return nil, false, nil
	}
	data := make([]byte, len(value))
	copy(data, value)
	return data, true, nil
}

// Set stores value under key and persists the store
func (s *FileStore) Set(ctx context.Context, key string, value []byte) error {
	data := make([]byte, len(value))
	copy(data, value)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	previous, existed := s.entries[key]
	s.entries[key] = data
	if err := s.persist(); err != nil {
		// Keep memory consistent with disk
		if existed {
			s.entries[key] = previous
		} else {
			delete(s.entries, key)
		}
		return err
	}
	return nil
}

// Path returns the location of the backing file
func (s *FileStore) Path() string {
	return s.path
}

// persist must be called with the write lock held
func (s *FileStore) persist() error {
	data, err := json.Marshal(s.entries)
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace store: %w", err)
	}
	return nil
}
