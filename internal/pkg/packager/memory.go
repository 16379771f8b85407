package packager

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process ObjectStore for tests and local runs without S3.
type MemoryStore struct {
	mu      sync.Mutex
	bucket  string
	objects map[string][]byte
}

func NewMemoryStore(bucket string) *MemoryStore {
	return &MemoryStore{bucket: bucket, objects: make(map[string][]byte)}
}

func (m *MemoryStore) Put(_ context.Context, objectKey string, body []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	location := fmt.Sprintf("mem://%s/%s", m.bucket, objectKey)
	m.objects[location] = append([]byte(nil), body...)
	return location, nil
}

func (m *MemoryStore) Get(_ context.Context, location string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.objects[location]
	if !ok {
		return nil, fmt.Errorf("object %s not found", location)
	}
	return append([]byte(nil), body...), nil
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
