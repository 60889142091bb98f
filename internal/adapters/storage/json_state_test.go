package storage_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyrisk/internal/adapters/storage"
)

type fakeState struct {
	Version int    `json:"version"`
	Label   string `json:"label"`
	Trades  int    `json:"trades"`
}

func TestJSONStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := storage.NewJSONStateStore(path)

	require.NoError(t, store.Save(fakeState{Version: 2, Label: "btc", Trades: 7}))

	var got fakeState
	found, err := store.Load(&got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, fakeState{Version: 2, Label: "btc", Trades: 7}, got)
}

func TestJSONStateMissingFile(t *testing.T) {
	store := storage.NewJSONStateStore(filepath.Join(t.TempDir(), "nope.json"))

	var got fakeState
	found, err := store.Load(&got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestJSONStateSecondSaveKeepsBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	store := storage.NewJSONStateStore(path)

	require.NoError(t, store.Save(fakeState{Version: 1}))
	require.NoError(t, store.Save(fakeState{Version: 2}))

	backup, err := os.ReadFile(filepath.Join(dir, "state.backup"))
	require.NoError(t, err)
	assert.Contains(t, string(backup), `"version": 1`)
}

func TestJSONStateFallsBackToBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	store := storage.NewJSONStateStore(path)

	require.NoError(t, store.Save(fakeState{Version: 1, Trades: 3}))
	require.NoError(t, store.Save(fakeState{Version: 2, Trades: 9}))

	// Simulate a crash mid-write on the main file.
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 2, "tra`), 0o644))

	var got fakeState
	found, err := store.Load(&got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, got.Version, "backup holds the previous good state")
	assert.Equal(t, 3, got.Trades)
}

func TestJSONStateBothCorrupted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.backup"), []byte("also broken"), 0o644))

	store := storage.NewJSONStateStore(path)
	var got fakeState
	found, err := store.Load(&got)
	assert.False(t, found)
	assert.Error(t, err)
}

func TestJSONStateCorruptMainDoesNotPoisonBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	store := storage.NewJSONStateStore(path)

	require.NoError(t, store.Save(fakeState{Version: 1}))
	require.NoError(t, store.Save(fakeState{Version: 2}))
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	// A save over a corrupted main must not copy the garbage over the
	// good backup from the previous write.
	require.NoError(t, store.Save(fakeState{Version: 3}))

	backup, err := os.ReadFile(filepath.Join(dir, "state.backup"))
	require.NoError(t, err)
	assert.Contains(t, string(backup), `"version": 1`)

	var got fakeState
	found, err := store.Load(&got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 3, got.Version)
}
