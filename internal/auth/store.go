package auth

import (
	"errors"
	"fmt"
	"sync"

	"taskflow/taskflow-api/internal/store"
)

var ErrUserNotFound = errors.New("user not found")

type UserStore interface {
	List() ([]Account, error)
	GetByEmail(email string) (Account, error)
	GetByID(id string) (Account, error)
	Put(acct Account) error
}

// CollectionUserStore keeps all accounts as one JSON array under the users
// key and rewrites the whole array on every Put.
type CollectionUserStore struct {
	kv store.Store
	mu sync.Mutex
}

func NewCollectionUserStore(kv store.Store) (*CollectionUserStore, error) {
	if kv == nil {
		return nil, fmt.Errorf("store is required")
	}
	if err := store.EnsureCollections(kv, store.KeyUsers); err != nil {
		return nil, fmt.Errorf("init users collection: %w", err)
	}
	return &CollectionUserStore{kv: kv}, nil
}

func (s *CollectionUserStore) List() ([]Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

func (s *CollectionUserStore) GetByEmail(email string) (Account, error) {
	return s.find(func(a Account) bool { return a.Email == email })
}

func (s *CollectionUserStore) GetByID(id string) (Account, error) {
	return s.find(func(a Account) bool { return a.ID == id })
}

func (s *CollectionUserStore) Put(acct Account) error {
	if acct.ID == "" {
		return fmt.Errorf("account id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	accounts, err := s.readLocked()
	if err != nil {
		return err
	}
	replaced := false
	for i := range accounts {
		if accounts[i].ID == acct.ID {
			accounts[i] = acct
			replaced = true
			break
		}
	}
	if !replaced {
		accounts = append(accounts, acct)
	}
	return store.SetJSON(s.kv, store.KeyUsers, accounts)
}

func (s *CollectionUserStore) find(match func(Account) bool) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	accounts, err := s.readLocked()
	if err != nil {
		return Account{}, err
	}
	for _, a := range accounts {
		if match(a) {
			return a, nil
		}
	}
	return Account{}, ErrUserNotFound
}

func (s *CollectionUserStore) readLocked() ([]Account, error) {
	var accounts []Account
	if _, err := store.GetJSON(s.kv, store.KeyUsers, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}
