package evidence

import (
	"context"
	"sort"
	"sync"
)

// MemorySink keeps payloads in process memory.
type MemorySink struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{objects: make(map[string][]byte)}
}

// Put stores a copy of payload.
func (m *MemorySink) Put(ctx context.Context, key string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buf := append([]byte(nil), payload...)
	m.mu.Lock()
	m.objects[key] = buf
	m.mu.Unlock()
	return nil
}

// Get returns the payload stored under key.
func (m *MemorySink) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	buf, ok := m.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), buf...), true
}

// Keys lists stored keys in lexical order.
func (m *MemorySink) Keys() []string {
	m.mu.RLock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	m.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Close is a no-op.
func (m *MemorySink) Close() error { return nil }
