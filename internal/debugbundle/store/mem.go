package store

import (
	"context"
	"sync"
)

// MemStore is an in-memory KV implementation, used by tests and as the
// fallback when Redis is unavailable, matching the teacher's own
// documented behavior ("If go-redis is not available, the app falls
// back to in-memory stores").
type MemStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemStore returns a ready-to-use in-memory KV store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func memKey(space, key string) string {
	return space + ":" + key
}

func (m *MemStore) Put(_ context.Context, space, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[memKey(space, key)] = cp
	return nil
}

func (m *MemStore) Remove(_ context.Context, space, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, memKey(space, key))
	return nil
}

func (m *MemStore) Get(_ context.Context, space, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[memKey(space, key)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}
