// Package tasks implements per-user task CRUD. Every operation takes the
// caller's session explicitly and only ever touches tasks the session's user
// owns.
package tasks

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskflow/taskflow-api/internal/auth"
)

var (
	ErrNotFound     = errors.New("task not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidInput = errors.New("invalid task input")
)

type Service struct {
	store   TaskStore
	nowFunc func() time.Time
	newID   func() string

	mu sync.Mutex
}

func NewService(store TaskStore) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("task store is required")
	}
	return &Service{
		store:   store,
		nowFunc: time.Now,
		newID:   uuid.NewString,
	}, nil
}

func ownerOf(sess auth.Session) (string, error) {
	if sess.Token == "" || sess.User.ID == "" {
		return "", ErrUnauthorized
	}
	return sess.User.ID, nil
}

// now is truncated to microseconds so timestamps survive a Postgres round trip.
func (s *Service) now() time.Time {
	return s.nowFunc().UTC().Truncate(time.Microsecond)
}

// List returns the session user's tasks, most recently created first. Tasks
// created at the same instant keep their insertion order.
func (s *Service) List(sess auth.Session, f Filter) ([]Task, error) {
	owner, err := ownerOf(sess)
	if err != nil {
		return nil, err
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, f.Status)
	}

	all, err := s.store.ListByOwner(owner)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	query := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]Task, 0, len(all))
	for _, t := range all {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(t.Title), query) &&
			!strings.Contains(strings.ToLower(t.Description), query) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Service) Get(sess auth.Session, id string) (Task, error) {
	owner, err := ownerOf(sess)
	if err != nil {
		return Task{}, err
	}
	t, err := s.store.Get(id)
	if err != nil {
		return Task{}, err
	}
	if t.UserID != owner {
		return Task{}, ErrNotFound
	}
	return t, nil
}

func (s *Service) Create(sess auth.Session, d Draft) (Task, error) {
	owner, err := ownerOf(sess)
	if err != nil {
		return Task{}, err
	}

	if d.Status == "" {
		d.Status = StatusTodo
	}
	if d.Priority == "" {
		d.Priority = PriorityMedium
	}
	if !d.Status.Valid() {
		return Task{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, d.Status)
	}
	if !d.Priority.Valid() {
		return Task{}, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, d.Priority)
	}
	due, err := normalizeOptionalDate(d.DueDate)
	if err != nil {
		return Task{}, err
	}

	now := s.now()
	t := Task{
		ID:          s.newID(),
		UserID:      owner,
		Title:       d.Title,
		Description: d.Description,
		Status:      d.Status,
		Priority:    d.Priority,
		DueDate:     due,
		AssignedTo:  d.AssignedTo,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Put(t); err != nil {
		return Task{}, fmt.Errorf("store task: %w", err)
	}
	return t, nil
}

// Update merges p over the stored task and always moves updatedAt forward,
// even when no field changes.
func (s *Service) Update(sess auth.Session, id string, p Patch) (Task, error) {
	owner, err := ownerOf(sess)
	if err != nil {
		return Task{}, err
	}
	if p.Status != nil && !p.Status.Valid() {
		return Task{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *p.Status)
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return Task{}, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, *p.Priority)
	}
	var due string
	if p.DueDate != nil {
		if due, err = normalizeOptionalDate(*p.DueDate); err != nil {
			return Task{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.store.Get(id)
	if err != nil {
		return Task{}, err
	}
	if t.UserID != owner {
		return Task{}, ErrNotFound
	}

	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.DueDate != nil {
		t.DueDate = due
	}
	if p.AssignedTo != nil {
		t.AssignedTo = *p.AssignedTo
	}

	now := s.now()
	if !now.After(t.UpdatedAt) {
		now = t.UpdatedAt.Add(time.Microsecond)
	}
	t.UpdatedAt = now

	if err := s.store.Put(t); err != nil {
		return Task{}, fmt.Errorf("store task: %w", err)
	}
	return t, nil
}

// Delete removes the task if the session user owns it. Unknown ids and other
// users' tasks are left alone without error.
func (s *Service) Delete(sess auth.Session, id string) error {
	owner, err := ownerOf(sess)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if t.UserID != owner {
		return nil
	}
	if err := s.store.Delete(id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

func normalizeOptionalDate(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	due, err := NormalizeDueDate(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return due, nil
}
