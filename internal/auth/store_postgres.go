package auth

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"taskflow/taskflow-api/internal/store"
)

const pgUniqueViolation = "23505"

type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgresUserStore(db *sql.DB) (*PostgresUserStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	s := &PostgresUserStore{db: db}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresUserStore) ensureSchema() error {
	const q = `
CREATE TABLE IF NOT EXISTS taskflow_users (
	seq BIGSERIAL,
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	role TEXT NOT NULL,
	password_hash TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
)`
	if _, err := s.db.Exec(q); err != nil {
		return fmt.Errorf("ensure taskflow_users schema: %w", err)
	}
	return nil
}

const selectAccount = `SELECT id, name, email, role, password_hash, created_at FROM taskflow_users`

func (s *PostgresUserStore) List() ([]Account, error) {
	rows, err := s.db.Query(selectAccount + ` ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("%w: query users: %v", store.ErrStorageFailure, err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Email, &a.Role, &a.Password, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan user: %v", store.ErrStorageFailure, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate users: %v", store.ErrStorageFailure, err)
	}
	return out, nil
}

func (s *PostgresUserStore) GetByEmail(email string) (Account, error) {
	if strings.TrimSpace(email) == "" {
		return Account{}, ErrUserNotFound
	}
	return s.getOne(selectAccount+` WHERE email = $1`, email)
}

func (s *PostgresUserStore) GetByID(id string) (Account, error) {
	if strings.TrimSpace(id) == "" {
		return Account{}, ErrUserNotFound
	}
	return s.getOne(selectAccount+` WHERE id = $1`, id)
}

func (s *PostgresUserStore) getOne(q string, arg string) (Account, error) {
	var a Account
	if err := s.db.QueryRow(q, arg).Scan(&a.ID, &a.Name, &a.Email, &a.Role, &a.Password, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrUserNotFound
		}
		return Account{}, fmt.Errorf("%w: query user: %v", store.ErrStorageFailure, err)
	}
	return a, nil
}

func (s *PostgresUserStore) Put(acct Account) error {
	if acct.ID == "" || acct.Email == "" {
		return fmt.Errorf("id and email are required")
	}

	const q = `
INSERT INTO taskflow_users (id, name, email, role, password_hash, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE
SET name = EXCLUDED.name,
	email = EXCLUDED.email,
	role = EXCLUDED.role,
	password_hash = EXCLUDED.password_hash`
	if _, err := s.db.Exec(q, acct.ID, acct.Name, acct.Email, string(acct.Role), acct.Password, acct.CreatedAt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
			return ErrDuplicateAccount
		}
		return fmt.Errorf("%w: upsert user: %v", store.ErrStorageFailure, err)
	}
	return nil
}
