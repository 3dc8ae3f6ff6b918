package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnsureCollectionsInitialisesAbsentKeys(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Set(KeyTasks, json.RawMessage(`[{"id":"t1"}]`)))

	require.NoError(t, EnsureCollections(s, KeyUsers, KeyTasks))

	raw, ok, err := s.Get(KeyUsers)
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `[]`, string(raw))

	raw, ok, err = s.Get(KeyTasks)
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `[{"id":"t1"}]`, string(raw))
}

func TestGetJSONAbsentKey(t *testing.T) {
	var v []string
	ok, err := GetJSON(NewMemoryStore(), KeyUsers, &v)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetJSONDecodeFailure(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Set(KeyToken, json.RawMessage(`{"a":1}`)))

	var token string
	_, err := GetJSON(s, KeyToken, &token)
	require.True(t, errors.Is(err, ErrStorageFailure), "got %v", err)
}

func TestSetJSONEncodeFailure(t *testing.T) {
	err := SetJSON(NewMemoryStore(), KeyToken, make(chan int))
	require.True(t, errors.Is(err, ErrStorageFailure), "got %v", err)
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, SetJSON(s, KeyToken, "tok"))
	require.NoError(t, s.Delete(KeyToken))
	require.NoError(t, s.Delete(KeyToken))

	_, ok, err := s.Get(KeyToken)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFileStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "taskflow.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, SetJSON(s, KeyToken, "tok-1"))
	require.NoError(t, SetJSON(s, KeyUsers, []map[string]string{{"id": "u1"}}))
	require.NoError(t, s.Delete(KeyToken))

	s2, err := NewFileStore(path)
	require.NoError(t, err)

	_, ok, err := s2.Get(KeyToken)
	require.NoError(t, err)
	require.False(t, ok)

	var users []map[string]string
	ok, err = GetJSON(s2, KeyUsers, &users)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "u1", users[0]["id"])

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileStoreSharesDocumentAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskflow.json")
	a, err := NewFileStore(path)
	require.NoError(t, err)
	b, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, SetJSON(a, KeyUsers, []map[string]string{{"id": "u1"}}))
	require.NoError(t, SetJSON(a, KeyToken, "tok-a"))

	var token string
	ok, err := GetJSON(b, KeyToken, &token)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "tok-a", token)

	require.NoError(t, SetJSON(b, KeyTasks, []map[string]string{{"id": "t1"}}))
	require.NoError(t, b.Delete(KeyToken))

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	var users []map[string]string
	ok, err = GetJSON(reopened, KeyUsers, &users)
	require.NoError(t, err)
	require.True(t, ok, "write to tasks dropped the users key")
	require.Equal(t, "u1", users[0]["id"])

	var tasks []map[string]string
	ok, err = GetJSON(reopened, KeyTasks, &tasks)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = a.Get(KeyToken)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskflow.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileStore(path)
	require.True(t, errors.Is(err, ErrStorageFailure), "got %v", err)
}

func TestNewFileStoreRequiresPath(t *testing.T) {
	_, err := NewFileStore("  ")
	require.Error(t, err)
}

func TestWithLatencyDelaysEachCall(t *testing.T) {
	mem := NewMemoryStore()
	require.Same(t, mem, WithLatency(mem, 0))

	var slept []time.Duration
	s := &latencyStore{next: mem, delay: 5 * time.Millisecond, sleep: func(d time.Duration) { slept = append(slept, d) }}

	require.NoError(t, SetJSON(s, KeyToken, "tok"))
	_, ok, err := s.Get(KeyToken)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.Delete(KeyToken))

	require.Equal(t, []time.Duration{5 * time.Millisecond, 5 * time.Millisecond, 5 * time.Millisecond}, slept)
}
