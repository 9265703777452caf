package kv

import (
	"context"
	"sync"
)

// MemoryStorage is an in-process Storage. A zero quota means unlimited.
type MemoryStorage struct {
	mu       sync.RWMutex
	data     map[string]string
	quota    int
	disabled bool
}

// NewMemory returns an empty MemoryStorage without a quota.
func NewMemory() *MemoryStorage {
	return &MemoryStorage{data: make(map[string]string)}
}

// NewMemoryWithQuota returns a MemoryStorage that refuses writes once the
// summed length of all keys and values would exceed quota bytes.
func NewMemoryWithQuota(quota int) *MemoryStorage {
	return &MemoryStorage{data: make(map[string]string), quota: quota}
}

// SetDisabled toggles whether every call fails with ErrUnavailable.
func (m *MemoryStorage) SetDisabled(disabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disabled = disabled
}

func (m *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.disabled {
		return "", false, ErrUnavailable
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStorage) Set(_ context.Context, key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disabled {
		return ErrUnavailable
	}

	if m.quota > 0 {
		used := m.usedLocked()
		if old, ok := m.data[key]; ok {
			used -= len(key) + len(old)
		}
		if used+len(key)+len(value) > m.quota {
			return ErrQuotaExceeded
		}
	}

	m.data[key] = value
	return nil
}

func (m *MemoryStorage) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disabled {
		return ErrUnavailable
	}
	delete(m.data, key)
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *MemoryStorage) usedLocked() int {
	n := 0
	for k, v := range m.data {
		n += len(k) + len(v)
	}
	return n
}
