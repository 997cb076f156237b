package testutil

import (
	"context"
	"sort"
	"sync"
)

// MemoryStorage is an in-memory string-keyed namespace with failure injection.
//
// It satisfies backup.Storage and session.Storage.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type MemoryStorage struct {
	mu     sync.Mutex
	values map[string]string

	// GetErr, SetErr and DeleteErr are returned by the matching method when set.
	GetErr    error
	SetErr    error
	DeleteErr error

	// Sets counts successful Set calls.
	Sets int
}

// NewMemoryStorage creates an empty storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: map[string]string{}}
}

// Get returns the value at key.
func (m *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return "", false, m.GetErr
	}
	v, ok := m.values[key]
	return v, ok, nil
}

// Set replaces the value at key.
func (m *MemoryStorage) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	m.values[key] = value
	m.Sets++
	return nil
}

// Delete removes key.
func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	delete(m.values, key)
	return nil
}

// Seed stores a raw value directly, bypassing failure injection.
func (m *MemoryStorage) Seed(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

// Raw returns the stored value directly, bypassing failure injection.
func (m *MemoryStorage) Raw(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

// Keys returns all keys in sorted order.
func (m *MemoryStorage) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
