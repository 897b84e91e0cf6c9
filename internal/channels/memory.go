package channels

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps channels in process. Used for tests and single node runs
// where workers upload through the API.
type MemoryStore struct {
	lock    sync.RWMutex
	objects map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (m *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	names := []string{}
	for name := range m.objects {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) Read(_ context.Context, name string) ([]byte, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	data, ok := m.objects[name]
	if !ok {
		return nil, ErrChannelNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) Write(_ context.Context, name string, data []byte) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.objects[name]; ok {
		return fmt.Errorf("channel %s: %w", name, ErrChannelExists)
	}
	m.objects[name] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStore) Type() string {
	return "memory"
}
