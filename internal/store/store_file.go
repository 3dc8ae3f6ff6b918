package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore keeps every key in one JSON document on disk. Each call re-reads
// the document so keys written by another FileStore on the same path are
// kept; a Set or Delete rewrites only its own key before the document is
// written to a temp file and renamed over the original.
type FileStore struct {
	path string

	mu sync.Mutex
}

func NewFileStore(path string) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("store file path is required")
	}

	s := &FileStore{path: path}
	if _, err := s.readLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Get(key string) (json.RawMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.readLocked()
	if err != nil {
		return nil, false, err
	}
	v, ok := values[key]
	if !ok {
		return nil, false, nil
	}
	return v, true, nil
}

func (s *FileStore) Set(key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return fmt.Errorf("%w: %s is not valid json", ErrStorageFailure, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.readLocked()
	if err != nil {
		return err
	}
	values[key] = append(json.RawMessage(nil), value...)
	return s.persistLocked(values)
}

func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.readLocked()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return s.persistLocked(values)
}

// readLocked returns the document currently on disk. A missing or empty
// file is an empty document.
func (s *FileStore) readLocked() (map[string]json.RawMessage, error) {
	values := make(map[string]json.RawMessage)
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return values, nil
		}
		return nil, fmt.Errorf("%w: read store file: %v", ErrStorageFailure, err)
	}
	if len(b) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(b, &values); err != nil {
		return nil, fmt.Errorf("%w: decode store file: %v", ErrStorageFailure, err)
	}
	return values, nil
}

func (s *FileStore) persistLocked(values map[string]json.RawMessage) error {
	b, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode store file: %v", ErrStorageFailure, err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir store dir: %v", ErrStorageFailure, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp store file: %v", ErrStorageFailure, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: write store file: %v", ErrStorageFailure, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: close store file: %v", ErrStorageFailure, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: replace store file: %v", ErrStorageFailure, err)
	}
	return nil
}
