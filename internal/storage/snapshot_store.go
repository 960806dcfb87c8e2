package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"accwatch/internal/accounts"
)

// SnapshotStore persists the latest snapshot to disk so pollers see the
// last known state immediately after a restart. Secrets never reach disk:
// the account secret field is excluded from serialization.
type SnapshotStore struct {
	path string
}

// NewSnapshotStore creates a store writing to the given file path.
func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

// Save writes the snapshot atomically (temp file + rename).
func (s *SnapshotStore) Save(snap accounts.Snapshot) error {
	if s == nil || s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// Load reads the persisted snapshot. A missing file is not an error; it
// returns ok=false and the cache starts empty.
func (s *SnapshotStore) Load() (accounts.Snapshot, bool, error) {
	if s == nil || s.path == "" {
		return accounts.Snapshot{}, false, nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return accounts.Snapshot{}, false, nil
		}
		return accounts.Snapshot{}, false, fmt.Errorf("read snapshot: %w", err)
	}
	var snap accounts.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.WithError(err).Warn("persisted snapshot is corrupt; starting empty")
		return accounts.Snapshot{}, false, nil
	}
	return snap, true, nil
}
