package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps all keys in a single JSON object on disk. The whole object is
// rewritten on every Set through a temp file and rename.
type FileStore struct {
	path  string
	quota int
	mu    sync.Mutex
}

func NewFileStore(path string, quota int) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure store dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to init store file: %w", err)
	}
	_ = f.Close()
	return &FileStore{path: path, quota: quota}, nil
}

func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.loadUnlocked()
	if err != nil {
		return "", false, &Error{Op: "get", Key: key, Err: err}
	}
	v, ok := values[key]
	return v, ok, nil
}

func (s *FileStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.loadUnlocked()
	if err != nil {
		return &Error{Op: "set", Key: key, Err: err}
	}
	if !fits(values, s.quota, key, value) {
		return &Error{Op: "set", Key: key, Err: ErrQuotaExceeded}
	}
	values[key] = value
	if err := s.saveUnlocked(values); err != nil {
		return &Error{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (s *FileStore) loadUnlocked() (map[string]string, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	values := make(map[string]string)
	if len(b) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(b, &values); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if values == nil {
		// a "null" document
		values = make(map[string]string)
	}
	return values, nil
}

func (s *FileStore) saveUnlocked(values map[string]string) error {
	b, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
