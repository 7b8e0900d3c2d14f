package localstore

import (
	"context"
	"strings"
	"sync"
)

// Memory is an in-process store used by tests and ephemeral sessions.
type Memory struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

// Get returns the stored value when present.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	if strings.TrimSpace(key) == "" {
		return nil, false, ErrInvalidKey
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	dup := make([]byte, len(value))
	copy(dup, value)
	return dup, true, nil
}

// Set overwrites the value for the key.
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	dup := make([]byte, len(value))
	copy(dup, value)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = dup
	return nil
}

// Delete removes the key; deleting an absent key is not an error.
func (m *Memory) Delete(_ context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error { return nil }
