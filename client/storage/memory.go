package storage

import (
	"context"
	"sync"
)

// memoryStore keeps everything in a map, mostly for tests and ephemeral runs
type memoryStore struct {
	lock sync.RWMutex
	data map[string]string
}

func NewMemory() Store {
	return &memoryStore{data: make(map[string]string)}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryStore) Remove(_ context.Context, key string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memoryStore) Clear(_ context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.data = make(map[string]string)
	return nil
}

func (m *memoryStore) Close() error {
	return nil
}
