package blob

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"
)

// Object is a stored blob with its content type.
type Object struct {
	ContentType string
	Data        []byte
}

// MemoryStore is an in-memory Store used for local runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Object
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]Object)}
}

// Upload implements Store.
func (m *MemoryStore) Upload(ctx context.Context, path, contentType string, data []byte) error {
	if path == "" {
		return fmt.Errorf("object path is required")
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = Object{ContentType: contentType, Data: buf}
	return nil
}

// Download implements Store.
func (m *MemoryStore) Download(ctx context.Context, path string) ([]byte, error) {
	obj, ok := m.Object(path)
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return obj.Data, nil
}

// SignedURL implements Store. The URL is not fetchable; it only encodes the
// path and expiry.
func (m *MemoryStore) SignedURL(ctx context.Context, path string, expires time.Time) (string, error) {
	if _, ok := m.Object(path); !ok {
		return "", fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	u := url.URL{
		Scheme:   "memory",
		Path:     "/" + path,
		RawQuery: url.Values{"expires": {fmt.Sprint(expires.Unix())}}.Encode(),
	}
	return u.String(), nil
}

// Object returns a copy of the object stored at path.
func (m *MemoryStore) Object(path string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[path]
	if !ok {
		return Object{}, false
	}
	buf := make([]byte, len(obj.Data))
	copy(buf, obj.Data)
	return Object{ContentType: obj.ContentType, Data: buf}, true
}
