package keystore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and by deployments that
// run without Redis. It keeps the same envelope semantics as the Redis store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	return entry.Data, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("keystore value marshal failed: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = Entry{Data: data, Timestamp: time.Now().UTC()}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// Len reports the number of stored keys. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
