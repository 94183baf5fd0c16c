package storage

import (
	"context"
	"sync"
)

type MemoryStore struct {
	mu     sync.RWMutex
	quota  int
	values map[string]string
}

func NewMemoryStore(quota int) *MemoryStore {
	return &MemoryStore{quota: quota, values: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !fits(s.values, s.quota, key, value) {
		return &Error{Op: "set", Key: key, Err: ErrQuotaExceeded}
	}
	s.values[key] = value
	return nil
}
