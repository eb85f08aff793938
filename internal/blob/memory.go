package blob

import (
	"context"
	"strings"
	"sync"
)

// Memory keeps archived payloads in a map; used in tests and when no
// object storage is configured.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
	prefix  string
}

// NewMemory creates an empty in-memory blob store.
func NewMemory(prefix string) *Memory {
	return &Memory{
		objects: make(map[string][]byte),
		prefix:  strings.Trim(prefix, "/"),
	}
}

// PutObject stores data and returns a mem:// URI.
func (m *Memory) PutObject(_ context.Context, path, _ string, data []byte) (string, error) {
	object := strings.TrimLeft(path, "/")
	if m.prefix != "" {
		object = m.prefix + "/" + object
	}
	m.mu.Lock()
	m.objects[object] = append([]byte(nil), data...)
	m.mu.Unlock()
	return "mem://" + object, nil
}

// Object returns a stored payload; test helper.
func (m *Memory) Object(path string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[path]
	return data, ok
}

// Len reports how many objects are stored.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
