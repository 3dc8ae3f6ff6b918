package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"taskflow/taskflow-api/internal/auth"
	"taskflow/taskflow-api/internal/config"
	"taskflow/taskflow-api/internal/tasks"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(config.ConfigFileEnv, "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("TASKFLOW_STORE_FILE", filepath.Join(dir, "taskflow.json"))
	t.Setenv("STORE_LATENCY_MS", "")
	t.Setenv("AUTH_BCRYPT_COST", "4")
	t.Setenv("AUDIT_LOG_FILE", filepath.Join(dir, "audit.log"))
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("AUTH_BOOTSTRAP_NAME", "Demo User")
	t.Setenv("AUTH_BOOTSTRAP_EMAIL", "demo@example.com")
	t.Setenv("AUTH_BOOTSTRAP_PASSWORD", "password")
	t.Setenv("AUTH_PASSWORD_PEPPER", "test-pepper")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, "taskflow %s", strings.Join(args, " "))
	return out
}

func TestSubcommandsRegistered(t *testing.T) {
	root := NewRootCommand()
	want := []string{"serve", "login", "register", "logout", "whoami", "profile", "tasks", "db"}
	for _, name := range want {
		found, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, found.Name())
	}
	for _, path := range [][]string{{"tasks", "list"}, {"tasks", "add"}, {"tasks", "update"}, {"tasks", "rm"}, {"profile", "update"}, {"db", "wait"}} {
		found, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[1], found.Name())
	}
}

func TestRegisterAddListUpdateRemove(t *testing.T) {
	dir := setupEnv(t)

	var res auth.AuthResult
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "register", "--name", "Alice", "--email", "alice@x.com", "--password", "secret1")), &res))
	assert.Equal(t, auth.RoleUser, res.User.Role)
	assert.NotEmpty(t, res.Token)

	var created tasks.Task
	out := mustRun(t, "tasks", "add", "--title", "Buy milk", "--description", "two liters of milk", "--due", "2024-01-01", "--status", "todo", "--priority", "low")
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, res.User.ID, created.UserID)
	assert.Equal(t, tasks.PriorityLow, created.Priority)

	var updated tasks.Task
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "tasks", "update", created.ID, "--status", "COMPLETED")), &updated))
	assert.Equal(t, tasks.StatusCompleted, updated.Status)
	assert.Equal(t, "Buy milk", updated.Title)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))

	var list []tasks.Task
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "tasks", "list", "-q", "MILK")), &list))
	require.Len(t, list, 1)

	mustRun(t, "tasks", "rm", created.ID)
	mustRun(t, "tasks", "rm", created.ID)
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "tasks", "list")), &list))
	assert.Empty(t, list)

	b, err := os.ReadFile(filepath.Join(dir, "audit.log"))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"action":"task.delete"`)
	assert.Contains(t, string(b), `"source":"cli"`)
}

func TestLoginBootstrapWhoamiLogout(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "login", "--email", "demo@example.com", "--password", "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	mustRun(t, "login", "--email", "demo@example.com", "--password", "password")

	var who struct {
		Authenticated bool      `json:"authenticated"`
		User          auth.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "whoami")), &who))
	assert.True(t, who.Authenticated)
	assert.Equal(t, auth.RoleAdmin, who.User.Role)
	assert.Equal(t, "Demo User", who.User.Name)

	mustRun(t, "logout")
	mustRun(t, "logout")
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "whoami")), &who))
	assert.False(t, who.Authenticated)

	_, err = run(t, "tasks", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}

func TestProfileUpdate(t *testing.T) {
	setupEnv(t)
	mustRun(t, "register", "--name", "Alice", "--email", "alice@x.com", "--password", "secret1")

	_, err := run(t, "profile", "update", "--password", "abc", "--confirm-password", "abc")
	assert.ErrorIs(t, err, auth.ErrWeakPassword)

	var u auth.User
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "profile", "update", "--name", "Alice B", "--password", "secret2", "--confirm-password", "secret2")), &u))
	assert.Equal(t, "Alice B", u.Name)

	mustRun(t, "logout")
	mustRun(t, "login", "--email", "alice@x.com", "--password", "secret2")
}

func TestTasksAddValidation(t *testing.T) {
	setupEnv(t)
	mustRun(t, "register", "--name", "Alice", "--email", "alice@x.com", "--password", "secret1")

	_, err := run(t, "tasks", "add", "--title", "ab", "--description", "two liters of milk", "--due", "2024-01-01")
	var fields tasks.FieldErrors
	require.ErrorAs(t, err, &fields)
	assert.Equal(t, "Title must be at least 3 characters long", fields["title"])
}

func TestYAMLOutputUsesJSONFieldNames(t *testing.T) {
	setupEnv(t)
	out := mustRun(t, "register", "--name", "Alice", "--email", "alice@x.com", "--password", "secret1", "-o", "yaml")

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	user, ok := doc["user"].(map[string]any)
	require.True(t, ok, "user block missing in %q", out)
	assert.Equal(t, "alice@x.com", user["email"])
	assert.Contains(t, user, "createdAt")
	assert.NotContains(t, user, "password")
}

func TestUnsupportedOutputFormat(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "whoami", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestDBWaitRequiresDSN(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "db", "wait")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}
