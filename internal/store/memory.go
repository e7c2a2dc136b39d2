package store

import (
	"context"
	"sync"
)

type memoryKV struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

func newMemoryKV() *memoryKV {
	return &memoryKV{buckets: make(map[string]map[string][]byte)}
}

func (m *memoryKV) get(_ context.Context, bucket, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, ok := m.buckets[bucket][key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return cp, true, nil
}

func (m *memoryKV) set(_ context.Context, bucket, key string, val []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buckets[bucket] == nil {
		m.buckets[bucket] = make(map[string][]byte)
	}
	cp := make([]byte, len(val))
	copy(cp, val)
	m.buckets[bucket][key] = cp
	return nil
}

func (m *memoryKV) delete(_ context.Context, bucket, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[bucket][key]; !ok {
		return false, nil
	}
	delete(m.buckets[bucket], key)
	return true, nil
}

func (m *memoryKV) list(_ context.Context, bucket string) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]byte, 0, len(m.buckets[bucket]))
	for _, raw := range m.buckets[bucket] {
		cp := make([]byte, len(raw))
		copy(cp, raw)
		out = append(out, cp)
	}
	return out, nil
}
