package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/harrisong/VideoStreaming-sub000/internal/domain"
)

// MemoryStorage keeps objects in process memory. It backs local runs with
// storage.type=memory and tests.
type MemoryStorage struct {
	mu        sync.RWMutex
	bucket    string
	publicURL string
	objects   map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage(bucket, publicURL string) *MemoryStorage {
	return &MemoryStorage{
		bucket:    bucket,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		objects:   make(map[string]memoryObject),
	}
}

func (m *MemoryStorage) EnsureBucket(ctx context.Context) error { return nil }

func (m *MemoryStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("%w: upload %s: %v", domain.ErrStorageFailed, key, err)
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("%w: upload %s: read %d bytes, expected %d", domain.ErrStorageFailed, key, len(data), size)
	}

	m.mu.Lock()
	m.objects[key] = memoryObject{data: data, contentType: contentType}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: download %s: not found", domain.ErrStorageFailed, key)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (m *MemoryStorage) GetURL(key string) string {
	if m.publicURL != "" {
		return m.publicURL + "/" + key
	}
	return "memory://" + m.bucket + "/" + key
}

func (m *MemoryStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	return ok, nil
}

// Keys lists stored keys in sorted order.
func (m *MemoryStorage) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ContentType returns the content type recorded for key.
func (m *MemoryStorage) ContentType(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objects[key].contentType
}
