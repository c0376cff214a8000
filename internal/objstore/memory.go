package objstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// MemoryStore is a process-local Store used for dry runs and tests. Versions
// are a per-object write counter.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data            []byte
	version         int64
	contentEncoding string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

// Read returns a copy of the stored object.
func (m *MemoryStore) Read(_ context.Context, key string) (*Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return &Object{
		Key:     key,
		Data:    append([]byte(nil), obj.data...),
		Version: strconv.FormatInt(obj.version, 10),
	}, nil
}

// Write stores a copy of data, honoring preconditions atomically.
func (m *MemoryStore) Write(_ context.Context, key string, data []byte, opts WriteOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.objects[key]
	if opts.IfNotExists && exists {
		return "", fmt.Errorf("%s already exists: %w", key, ErrPreconditionFailed)
	}
	if opts.IfVersion != "" && (!exists || strconv.FormatInt(current.version, 10) != opts.IfVersion) {
		return "", fmt.Errorf("%s is not at version %s: %w", key, opts.IfVersion, ErrPreconditionFailed)
	}

	next := memoryObject{
		data:            append([]byte(nil), data...),
		version:         current.version + 1,
		contentEncoding: opts.ContentEncoding,
	}
	m.objects[key] = next
	return strconv.FormatInt(next.version, 10), nil
}

// Keys lists stored keys in lexical order.
func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ContentEncoding returns the content encoding an object was written with.
func (m *MemoryStore) ContentEncoding(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[key].contentEncoding
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
