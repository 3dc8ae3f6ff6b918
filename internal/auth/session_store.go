package auth

import (
	"errors"
	"fmt"

	"taskflow/taskflow-api/internal/store"
)

// SessionStore persists the single active session of a store instance.
type SessionStore interface {
	// Load returns whatever token and user snapshot are persisted. Either may
	// be empty.
	Load() (Session, error)
	Save(sess Session) error
	SaveUser(u User) error
	Clear() error
}

// CollectionSessionStore keeps the token and the user snapshot under two
// independent keys; they are not updated atomically together.
type CollectionSessionStore struct {
	kv store.Store
}

func NewCollectionSessionStore(kv store.Store) (*CollectionSessionStore, error) {
	if kv == nil {
		return nil, fmt.Errorf("store is required")
	}
	return &CollectionSessionStore{kv: kv}, nil
}

func (s *CollectionSessionStore) Load() (Session, error) {
	var sess Session
	if _, err := store.GetJSON(s.kv, store.KeyToken, &sess.Token); err != nil {
		return Session{}, fmt.Errorf("load session token: %w", err)
	}
	if _, err := store.GetJSON(s.kv, store.KeyCurrentUser, &sess.User); err != nil {
		return Session{}, fmt.Errorf("load session user: %w", err)
	}
	return sess, nil
}

func (s *CollectionSessionStore) Save(sess Session) error {
	if sess.Token == "" {
		return fmt.Errorf("session token is required")
	}
	if err := store.SetJSON(s.kv, store.KeyToken, sess.Token); err != nil {
		return fmt.Errorf("save session token: %w", err)
	}
	return s.SaveUser(sess.User)
}

func (s *CollectionSessionStore) SaveUser(u User) error {
	if err := store.SetJSON(s.kv, store.KeyCurrentUser, u); err != nil {
		return fmt.Errorf("save session user: %w", err)
	}
	return nil
}

func (s *CollectionSessionStore) Clear() error {
	return errors.Join(s.kv.Delete(store.KeyToken), s.kv.Delete(store.KeyCurrentUser))
}
