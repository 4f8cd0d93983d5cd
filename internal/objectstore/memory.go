package objectstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/dreamforge/internal/apperr"
)

// Memory is an in-process ObjectStore backing eager-mode tests (§8's S1-S6
// scenarios run without a real MinIO/S3 endpoint). PresignGet returns a
// "mem://" URL whose key a test can round-trip back through Get directly,
// satisfying the presign-idempotence property (§8 invariant 7) without a
// network hop.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ ObjectStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Put(ctx context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.data[key] = cp
	return nil
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[key]
	if !ok {
		return nil, apperr.NotFound(fmt.Sprintf("object %s not found", key))
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (m *Memory) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.data[key]; !ok {
		return "", apperr.NotFound(fmt.Sprintf("object %s not found", key))
	}
	return "mem://" + key, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
