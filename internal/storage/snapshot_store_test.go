package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"accwatch/internal/accounts"
)

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "snapshot.json")
	store := NewSnapshotStore(path)

	now := time.Now().UTC().Truncate(time.Second)
	snap := accounts.Snapshot{
		Accounts: []accounts.Account{
			{ID: "Acc1", Label: "Acc1", Identity: "a@b.com", Secret: "hunter2", Status: accounts.StatusValid, DisplayName: "A"},
		},
		LastRefreshedAt: &now,
		Generation:      "gen-1",
	}
	require.NoError(t, store.Save(snap))

	loaded, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, loaded.Accounts, 1)
	require.Equal(t, "a@b.com", loaded.Accounts[0].Identity)
	require.Equal(t, accounts.StatusValid, loaded.Accounts[0].Status)
	require.NotNil(t, loaded.LastRefreshedAt)
	require.True(t, loaded.LastRefreshedAt.Equal(now))
}

func TestSnapshotNeverPersistsSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	store := NewSnapshotStore(path)

	snap := accounts.Snapshot{
		Accounts: []accounts.Account{
			{ID: "Acc1", Identity: "a@b.com", Secret: "hunter2", Status: accounts.StatusValid},
		},
	}
	require.NoError(t, store.Save(snap))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "hunter2")

	loaded, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, loaded.Accounts[0].Secret)
}

func TestLoadMissingFile(t *testing.T) {
	store := NewSnapshotStore(filepath.Join(t.TempDir(), "missing.json"))
	_, ok, err := store.Load()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLoadCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, ok, err := NewSnapshotStore(path).Load()
	require.NoError(t, err)
	require.False(t, ok)
}
