package index

import (
	"context"
	"sync"
	"time"

	"pdlbus/internal/notification"
	"pdlbus/internal/product"
)

type MemoryIndex struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (m *MemoryIndex) Lookup(_ context.Context, id product.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[id.String()]
	return ok, nil
}

func (m *MemoryIndex) Record(_ context.Context, env *notification.Envelope) error {
	e := newEntry(env, m.now())
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Key] = e
	return nil
}

func (m *MemoryIndex) RemoveExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for k, e := range m.entries {
		if e.Expires.Before(now) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryIndex) Count(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.entries)), nil
}

func (m *MemoryIndex) Close() error {
	return nil
}
