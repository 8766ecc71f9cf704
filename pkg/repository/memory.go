package repository

import (
	"context"
	"sync"

	"github.com/3-electric-sheep/wisdk-go/pkg/domain"
)

// MemoryBackend is a Backend that keeps blobs in memory. Used by tests and
// by hosts that manage durability themselves.
type MemoryBackend struct {
	mu    sync.RWMutex
	blobs map[string][]byte

	// FailSaves forces Save to return an error (test hook for the
	// best-effort durability path).
	FailSaves error
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{blobs: make(map[string][]byte)}
}

func (m *MemoryBackend) Load(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	blob, ok := m.blobs[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), blob...), nil
}

func (m *MemoryBackend) Save(ctx context.Context, key string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSaves != nil {
		return m.FailSaves
	}
	m.blobs[key] = append([]byte(nil), blob...)
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}
