package integration

import (
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"taskflow/taskflow-api/internal/auth"
	"taskflow/taskflow-api/internal/store"
	"taskflow/taskflow-api/internal/tasks"
)

func openTestPostgres(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping Postgres integration tests")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("sql.Open() error: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	if err := db.Ping(); err != nil {
		t.Fatalf("db.Ping() error: %v", err)
	}
	return db
}

type backend struct {
	auth  *auth.Service
	tasks *tasks.Service
}

func newBackend(t *testing.T, db *sql.DB) backend {
	t.Helper()

	kv, err := store.NewPostgresStore(db)
	if err != nil {
		t.Fatalf("NewPostgresStore() error: %v", err)
	}
	users, err := auth.NewPostgresUserStore(db)
	if err != nil {
		t.Fatalf("NewPostgresUserStore() error: %v", err)
	}
	taskStore, err := tasks.NewPostgresTaskStore(db)
	if err != nil {
		t.Fatalf("NewPostgresTaskStore() error: %v", err)
	}
	sessions, err := auth.NewCollectionSessionStore(kv)
	if err != nil {
		t.Fatalf("NewCollectionSessionStore() error: %v", err)
	}
	authSvc, err := auth.NewService(users, auth.ServiceConfig{
		PasswordPepper: "integration-pepper",
		BcryptCost:     4,
		Sessions:       sessions,
	})
	if err != nil {
		t.Fatalf("auth.NewService() error: %v", err)
	}
	taskSvc, err := tasks.NewService(taskStore)
	if err != nil {
		t.Fatalf("tasks.NewService() error: %v", err)
	}
	t.Cleanup(func() {
		_ = kv.Delete(store.KeyToken)
		_ = kv.Delete(store.KeyCurrentUser)
	})
	return backend{auth: authSvc, tasks: taskSvc}
}

func registerTemp(t *testing.T, db *sql.DB, b backend, prefix string) auth.Session {
	t.Helper()
	email := fmt.Sprintf("%s_%d@itest.local", prefix, time.Now().UnixNano())
	res, err := b.auth.Register(prefix, email, "Password123!")
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	t.Cleanup(func() {
		_, _ = db.Exec("DELETE FROM taskflow_tasks WHERE user_id = $1", res.User.ID)
		_, _ = db.Exec("DELETE FROM taskflow_users WHERE id = $1", res.User.ID)
	})
	sess, err := b.auth.ValidateToken(res.Token)
	if err != nil {
		t.Fatalf("ValidateToken() error: %v", err)
	}
	return sess
}

func TestPostgresRegisterLoginRoundTrip(t *testing.T) {
	db := openTestPostgres(t)
	b := newBackend(t, db)

	sess := registerTemp(t, db, b, "itest_auth")
	if err := b.auth.Logout(); err != nil {
		t.Fatalf("Logout() error: %v", err)
	}
	if _, err := b.auth.ValidateToken(sess.Token); err != auth.ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken after logout, got %v", err)
	}

	res, err := b.auth.Login(sess.User.Email, "Password123!")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if res.Token == sess.Token {
		t.Fatalf("expected a fresh token per login")
	}
	if _, err := b.auth.Register("dup", sess.User.Email, "Password123!"); err != auth.ErrDuplicateAccount {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}

	name := "Renamed"
	u, err := b.auth.UpdateProfile(sess.User.ID, auth.ProfileUpdate{Name: &name})
	if err != nil {
		t.Fatalf("UpdateProfile() error: %v", err)
	}
	current, ok, err := b.auth.CurrentUser()
	if err != nil || !ok || current.Name != u.Name {
		t.Fatalf("expected refreshed session user, got %+v ok=%v err=%v", current, ok, err)
	}
}

func TestPostgresTaskLifecycle(t *testing.T) {
	db := openTestPostgres(t)
	b := newBackend(t, db)
	alice := registerTemp(t, db, b, "itest_alice")
	bob := registerTemp(t, db, b, "itest_bob")

	first, err := b.tasks.Create(alice, tasks.Draft{Title: "Buy milk", Description: "two liters of milk", DueDate: "2024-01-01", Priority: tasks.PriorityLow})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	second, err := b.tasks.Create(alice, tasks.Draft{Title: "Call mom", Description: "it is her birthday", DueDate: "2024-01-02"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	list, err := b.tasks.List(alice, tasks.Filter{})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("expected newest first, got %+v", list)
	}

	completed := tasks.StatusCompleted
	updated, err := b.tasks.Update(alice, first.ID, tasks.Patch{Status: &completed})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if !updated.UpdatedAt.After(first.CreatedAt) || !updated.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("unexpected timestamps: %+v", updated)
	}

	if _, err := b.tasks.Update(bob, first.ID, tasks.Patch{Status: &completed}); err != tasks.ErrNotFound {
		t.Fatalf("expected ErrNotFound for another user's task, got %v", err)
	}
	bobList, err := b.tasks.List(bob, tasks.Filter{})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(bobList) != 0 {
		t.Fatalf("expected bob to see no tasks, got %+v", bobList)
	}

	if err := b.tasks.Delete(alice, first.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if err := b.tasks.Delete(alice, first.ID); err != nil {
		t.Fatalf("second Delete() error: %v", err)
	}
	if _, err := b.tasks.Get(alice, first.ID); err != tasks.ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
