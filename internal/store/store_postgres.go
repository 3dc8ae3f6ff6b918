package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PostgresStore keeps each key as one JSONB row.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	s := &PostgresStore{db: db}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema() error {
	const q = `
CREATE TABLE IF NOT EXISTS taskflow_kv (
	key TEXT PRIMARY KEY,
	value JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	if _, err := s.db.Exec(q); err != nil {
		return fmt.Errorf("ensure taskflow_kv schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(key string) (json.RawMessage, bool, error) {
	var raw []byte
	const q = `SELECT value FROM taskflow_kv WHERE key = $1`
	if err := s.db.QueryRow(q, key).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: query %s: %v", ErrStorageFailure, key, err)
	}
	return json.RawMessage(raw), true, nil
}

func (s *PostgresStore) Set(key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return fmt.Errorf("%w: %s is not valid json", ErrStorageFailure, key)
	}
	const q = `
INSERT INTO taskflow_kv (key, value, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE
SET value = EXCLUDED.value,
	updated_at = NOW()`
	if _, err := s.db.Exec(q, key, []byte(value)); err != nil {
		return fmt.Errorf("%w: upsert %s: %v", ErrStorageFailure, key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM taskflow_kv WHERE key = $1`, key); err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrStorageFailure, key, err)
	}
	return nil
}
