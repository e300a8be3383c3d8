package blob

import (
	"context"
	"sync"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
)

type memoryObject struct {
	contentType string
	data        []byte
}

// Memory is the in-process store used for local development and tests.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

// NewMemory builds an empty in-process store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]memoryObject)}
}

func (m *Memory) Put(ctx context.Context, tenantUID int64, contentType string, data []byte) (string, error) {
	if err := checkSize(data); err != nil {
		return "", err
	}
	key := contentKey(tenantUID, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.objects[key]; !exists {
		stored := make([]byte, len(data))
		copy(stored, data)
		m.objects[key] = memoryObject{contentType: contentType, data: stored}
	}
	return key, nil
}

func (m *Memory) Get(ctx context.Context, tenantUID int64, key string) ([]byte, string, error) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, "", apperr.NotFound("file", "file %q not found", key)
	}
	return obj.data, obj.contentType, nil
}
