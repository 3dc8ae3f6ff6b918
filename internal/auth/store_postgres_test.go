package auth

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"taskflow/taskflow-api/internal/store"
)

func newMockUserStore(t *testing.T) (*PostgresUserStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS taskflow_users").WillReturnResult(sqlmock.NewResult(0, 0))
	store, err := NewPostgresUserStore(db)
	if err != nil {
		t.Fatalf("NewPostgresUserStore() error: %v", err)
	}
	return store, mock
}

func TestNewPostgresUserStore(t *testing.T) {
	_, mock := newMockUserStore(t)
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations not met: %v", err)
	}
}

func TestPostgresUserStoreGetByEmailNotFound(t *testing.T) {
	store, mock := newMockUserStore(t)

	mock.ExpectQuery("SELECT id, name, email, role, password_hash, created_at FROM taskflow_users WHERE email = \\$1").
		WithArgs("missing@x.com").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetByEmail("missing@x.com")
	if err != ErrUserNotFound {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations not met: %v", err)
	}
}

func TestPostgresUserStoreListAndGetByID(t *testing.T) {
	store, mock := newMockUserStore(t)
	now := time.Date(2026, 2, 16, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT id, name, email, role, password_hash, created_at FROM taskflow_users ORDER BY seq").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "role", "password_hash", "created_at"}).
			AddRow("u1", "Alice", "alice@x.com", "user", "hash", now).
			AddRow("u2", "Demo", "demo@example.com", "admin", "hash", now))
	mock.ExpectQuery("SELECT id, name, email, role, password_hash, created_at FROM taskflow_users WHERE id = \\$1").
		WithArgs("u2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "role", "password_hash", "created_at"}).
			AddRow("u2", "Demo", "demo@example.com", "admin", "hash", now))

	all, err := store.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(all) != 2 || all[0].ID != "u1" {
		t.Fatalf("unexpected accounts: %+v", all)
	}
	got, err := store.GetByID("u2")
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if got.Role != RoleAdmin {
		t.Fatalf("expected admin role, got %q", got.Role)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations not met: %v", err)
	}
}

func TestPostgresUserStorePut(t *testing.T) {
	store, mock := newMockUserStore(t)
	now := time.Date(2026, 2, 16, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO taskflow_users").
		WithArgs("u1", "Alice", "alice@x.com", "user", "hash", now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := store.Put(Account{
		User:     User{ID: "u1", Name: "Alice", Email: "alice@x.com", Role: RoleUser, CreatedAt: now},
		Password: "hash",
	}); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations not met: %v", err)
	}
}

func TestPostgresUserStorePutDuplicateEmail(t *testing.T) {
	store, mock := newMockUserStore(t)

	mock.ExpectExec("INSERT INTO taskflow_users").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := store.Put(Account{User: User{ID: "u2", Name: "Alice", Email: "alice@x.com", Role: RoleUser}})
	if !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}
}

func TestPostgresUserStoreFailuresAreStorageFailures(t *testing.T) {
	users, mock := newMockUserStore(t)

	mock.ExpectQuery("FROM taskflow_users WHERE email = \\$1").
		WithArgs("alice@x.com").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectExec("INSERT INTO taskflow_users").
		WillReturnError(errors.New("connection reset"))

	if _, err := users.GetByEmail("alice@x.com"); !errors.Is(err, store.ErrStorageFailure) {
		t.Fatalf("expected ErrStorageFailure from GetByEmail, got %v", err)
	}
	err := users.Put(Account{User: User{ID: "u1", Name: "Alice", Email: "alice@x.com", Role: RoleUser}})
	if !errors.Is(err, store.ErrStorageFailure) {
		t.Fatalf("expected ErrStorageFailure from Put, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations not met: %v", err)
	}
}
