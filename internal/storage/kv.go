// Package storage provides the durable key-value store backing
// cross-navigation snapshots. The interface is tiny (get, set, remove)
// because that is all the snapshot layer consumes.
package storage

import (
	"context"
	"sync"
)

// KV is a key-value store.
type KV interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	// Close releases underlying resources.
	Close() error
}

// Memory is an in-process KV for the short-lived, single-navigation store
// and for tests. It intentionally does not survive a process restart, just
// as the in-page store it models does not survive a reload.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory builds an empty Memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Get implements KV.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Set implements KV.
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	m.data[key] = append([]byte(nil), value...)
	m.mu.Unlock()
	return nil
}

// Remove implements KV.
func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// Close implements KV.
func (m *Memory) Close() error { return nil }
