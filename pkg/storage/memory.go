package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore 是进程内的 BlobStore，用于测试和 CLI 的 --memory 演练模式。
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore 创建空的内存存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (s *MemoryStore) Upload(_ context.Context, namespace, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectKey(namespace, name)] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) Download(_ context.Context, namespace, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := objectKey(namespace, name)
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrObjectNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Delete(_ context.Context, namespace, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := objectKey(namespace, name)
	if _, ok := s.objects[key]; !ok {
		return fmt.Errorf("%s: %w", key, ErrObjectNotFound)
	}
	delete(s.objects, key)
	return nil
}

// Keys 返回所有对象键，按字典序排列。
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
