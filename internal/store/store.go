// Package store is the key-value surface the services persist through. Each
// key holds one JSON value; collections are rewritten whole on every change.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrStorageFailure wraps every encode, decode and backend error.
var ErrStorageFailure = errors.New("storage failure")

const (
	KeyUsers       = "users"
	KeyTasks       = "tasks"
	KeyToken       = "token"
	KeyCurrentUser = "currentUser"
)

type Store interface {
	Get(key string) (json.RawMessage, bool, error)
	Set(key string, value json.RawMessage) error
	Delete(key string) error
}

// GetJSON decodes the value under key into dst. It reports false when the key
// is absent.
func GetJSON(s Store, key string, dst any) (bool, error) {
	raw, ok, err := s.Get(key)
	if err != nil {
		return false, err
	}
	if !ok || len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("%w: decode %s: %v", ErrStorageFailure, key, err)
	}
	return true, nil
}

func SetJSON(s Store, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrStorageFailure, key, err)
	}
	return s.Set(key, b)
}

// EnsureCollections initialises each absent key to an empty JSON array.
func EnsureCollections(s Store, keys ...string) error {
	for _, key := range keys {
		_, ok, err := s.Get(key)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if err := s.Set(key, json.RawMessage(`[]`)); err != nil {
			return err
		}
	}
	return nil
}

type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]json.RawMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]json.RawMessage)}
}

func (s *MemoryStore) Get(key string) (json.RawMessage, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	return append(json.RawMessage(nil), v...), true, nil
}

func (s *MemoryStore) Set(key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return fmt.Errorf("%w: %s is not valid json", ErrStorageFailure, key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append(json.RawMessage(nil), value...)
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
