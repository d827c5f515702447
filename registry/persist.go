package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// HistoryFilename is the registry snapshot file, kept under the temp root.
// The leading dot keeps it out of file-manager listings.
const HistoryFilename = ".task_history.json"

const snapshotVersion = 1

type snapshotFile struct {
	Version int              `json:"version"`
	Tasks   map[string]*Task `json:"tasks"`
}

// loadSnapshot reads the registry file. A missing file is an empty registry;
// a corrupt one is an error, because silently dropping history would also
// drop the stale-task recovery pass.
func loadSnapshot(path string) (map[string]*Task, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]*Task{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading task history: %w", err)
	}
	var snap snapshotFile
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("parsing task history %s: %w", path, err)
	}
	if snap.Tasks == nil {
		snap.Tasks = map[string]*Task{}
	}
	for id, t := range snap.Tasks {
		if t.ID == "" {
			t.ID = id
		}
	}
	return snap.Tasks, nil
}

// persistSnapshot writes the whole registry to path atomically: the content
// lands in a temp file first and replaces the old snapshot in one rename, so
// a crash mid-write leaves the previous history intact.
func persistSnapshot(path string, tasks map[string]*Task) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(snapshotFile{Version: snapshotVersion, Tasks: tasks}, "", "  ")
	if err != nil {
		return err
	}

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return err
	}
	defer func() { _ = pending.Cleanup() }()
	if _, err := pending.Write(raw); err != nil {
		return err
	}
	return pending.CloseAtomicallyReplace()
}
