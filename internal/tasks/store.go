package tasks

import (
	"fmt"
	"sync"

	"taskflow/taskflow-api/internal/store"
)

type TaskStore interface {
	// ListByOwner returns the owner's tasks in insertion order.
	ListByOwner(userID string) ([]Task, error)
	Get(id string) (Task, error)
	Put(t Task) error
	// Delete removes the task; an unknown id is not an error.
	Delete(id string) error
}

// CollectionTaskStore keeps every task as one JSON array under the tasks key.
type CollectionTaskStore struct {
	kv store.Store
	mu sync.Mutex
}

func NewCollectionTaskStore(kv store.Store) (*CollectionTaskStore, error) {
	if kv == nil {
		return nil, fmt.Errorf("store is required")
	}
	if err := store.EnsureCollections(kv, store.KeyTasks); err != nil {
		return nil, fmt.Errorf("init tasks collection: %w", err)
	}
	return &CollectionTaskStore{kv: kv}, nil
}

func (s *CollectionTaskStore) ListByOwner(userID string) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	out := make([]Task, 0, len(all))
	for _, t := range all {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *CollectionTaskStore) Get(id string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.readLocked()
	if err != nil {
		return Task{}, err
	}
	for _, t := range all {
		if t.ID == id {
			return t, nil
		}
	}
	return Task{}, ErrNotFound
}

func (s *CollectionTaskStore) Put(t Task) error {
	if t.ID == "" {
		return fmt.Errorf("task id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.readLocked()
	if err != nil {
		return err
	}
	replaced := false
	for i := range all {
		if all[i].ID == t.ID {
			all[i] = t
			replaced = true
			break
		}
	}
	if !replaced {
		all = append(all, t)
	}
	return store.SetJSON(s.kv, store.KeyTasks, all)
}

func (s *CollectionTaskStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.readLocked()
	if err != nil {
		return err
	}
	kept := all[:0]
	for _, t := range all {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(all) {
		return nil
	}
	return store.SetJSON(s.kv, store.KeyTasks, kept)
}

func (s *CollectionTaskStore) readLocked() ([]Task, error) {
	var all []Task
	if _, err := store.GetJSON(s.kv, store.KeyTasks, &all); err != nil {
		return nil, err
	}
	return all, nil
}
