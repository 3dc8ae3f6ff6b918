package tasks

import (
	"database/sql"
	"errors"
	"fmt"

	"taskflow/taskflow-api/internal/store"
)

type PostgresTaskStore struct {
	db *sql.DB
}

// NewPostgresTaskStore expects the taskflow_users table to exist already;
// task rows reference their owner.
func NewPostgresTaskStore(db *sql.DB) (*PostgresTaskStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	s := &PostgresTaskStore{db: db}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresTaskStore) ensureSchema() error {
	const q = `
CREATE TABLE IF NOT EXISTS taskflow_tasks (
	seq BIGSERIAL,
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES taskflow_users(id),
	title TEXT NOT NULL,
	description TEXT NOT NULL,
	status TEXT NOT NULL,
	priority TEXT NOT NULL,
	due_date TEXT NOT NULL,
	assigned_to TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`
	if _, err := s.db.Exec(q); err != nil {
		return fmt.Errorf("ensure taskflow_tasks schema: %w", err)
	}
	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS taskflow_tasks_user_id_idx ON taskflow_tasks (user_id)`); err != nil {
		return fmt.Errorf("ensure taskflow_tasks index: %w", err)
	}
	return nil
}

const selectTask = `
SELECT id, user_id, title, description, status, priority, due_date, assigned_to, created_at, updated_at
FROM taskflow_tasks`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (Task, error) {
	var t Task
	err := r.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.DueDate, &t.AssignedTo, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (s *PostgresTaskStore) ListByOwner(userID string) ([]Task, error) {
	rows, err := s.db.Query(selectTask+` WHERE user_id = $1 ORDER BY seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: query tasks: %v", store.ErrStorageFailure, err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan task: %v", store.ErrStorageFailure, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate tasks: %v", store.ErrStorageFailure, err)
	}
	return out, nil
}

func (s *PostgresTaskStore) Get(id string) (Task, error) {
	t, err := scanTask(s.db.QueryRow(selectTask+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Task{}, ErrNotFound
		}
		return Task{}, fmt.Errorf("%w: query task: %v", store.ErrStorageFailure, err)
	}
	return t, nil
}

func (s *PostgresTaskStore) Put(t Task) error {
	if t.ID == "" {
		return fmt.Errorf("task id is required")
	}
	const q = `
INSERT INTO taskflow_tasks
  (id, user_id, title, description, status, priority, due_date, assigned_to, created_at, updated_at)
VALUES
  ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE
SET title = EXCLUDED.title,
	description = EXCLUDED.description,
	status = EXCLUDED.status,
	priority = EXCLUDED.priority,
	due_date = EXCLUDED.due_date,
	assigned_to = EXCLUDED.assigned_to,
	updated_at = EXCLUDED.updated_at`
	if _, err := s.db.Exec(q, t.ID, t.UserID, t.Title, t.Description, string(t.Status), string(t.Priority), t.DueDate, t.AssignedTo, t.CreatedAt, t.UpdatedAt); err != nil {
		return fmt.Errorf("%w: upsert task: %v", store.ErrStorageFailure, err)
	}
	return nil
}

func (s *PostgresTaskStore) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM taskflow_tasks WHERE id = $1`, id); err != nil {
		return fmt.Errorf("%w: delete task: %v", store.ErrStorageFailure, err)
	}
	return nil
}
