package keystore

import (
	"context"
	"sync"
)

// Memory is an in-process Store. Records are kept encoded, so callers never
// share slices with the store.
type Memory struct {
	mu   sync.RWMutex
	key  string
	data map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...Option) *Memory {
	o := buildOptions(opts)
	return &Memory{key: o.key(), data: make(map[string][]byte)}
}

func (m *Memory) Put(ctx context.Context, r *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(r)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[m.key] = data
	return nil
}

func (m *Memory) Get(ctx context.Context) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	data, ok := m.data[m.key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decode(data)
}

func (m *Memory) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, m.key)
	return nil
}

func (m *Memory) Close() error { return nil }
