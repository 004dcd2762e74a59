package balancecache

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process Backend. Expired items are dropped lazily on read.
type Memory struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	now   func() time.Time
}

// NewMemory returns an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

// Get implements Backend.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	item, ok := m.items[key]
	m.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}

	if !item.expiresAt.IsZero() && !m.now().Before(item.expiresAt) {
		m.mu.Lock()
		if cur, ok := m.items[key]; ok && cur.expiresAt.Equal(item.expiresAt) {
			delete(m.items, key)
		}
		m.mu.Unlock()

		return nil, false, nil
	}

	return append([]byte(nil), item.value...), true, nil
}

// Set implements Backend.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	item := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.items[key] = item
	m.mu.Unlock()

	return nil
}

// Delete implements Backend.
func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.items, k)
	}
	m.mu.Unlock()

	return nil
}
