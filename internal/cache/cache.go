package cache

import (
	"context"
	"sync"
	"time"
)

// Store is the persistence collaborator behind RouteCache: a durable get/set
// keyed by string.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// MemoryStore provides thread-safe in-memory storage. Contents do not survive
// a restart; use FileStore where durability matters.
type MemoryStore struct {
	entries map[string]*storeEntry
	mutex   sync.RWMutex
}

// storeEntry represents a stored value with metadata
type storeEntry struct {
	Data      []byte
	UpdatedAt time.Time
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*storeEntry),
	}
}

// Get retrieves a copy of the value stored under key
func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	entry, exists := m.entries[key]
	if !exists {
		return nil, false, nil
	}

	data := make([]byte, len(entry.Data))
	copy(data, entry.Data)
	return data, true, nil
}

// Set stores value under key, replacing any previous value
func (m *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	data := make([]byte, len(value))
	copy(data, value)

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.entries[key] = &storeEntry{Data: data, UpdatedAt: time.Now()}
	return nil
}
