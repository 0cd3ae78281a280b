package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// journalFormat is bumped when the on-disk layout changes.
const journalFormat = 1

type journalFile struct {
	Format  int      `json:"format"`
	Actions []Action `json:"actions"`
}

// Journal mirrors the queue to a JSON file. Writes go through a temp
// file and rename so a crash mid-write never leaves a torn journal, and
// an advisory lock keeps two processes from clobbering each other.
type Journal struct {
	path string
	lock *flock.Flock
}

// OpenJournal acquires the journal lock for this process.
func OpenJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create queue directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock queue journal: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("queue journal %s is locked by another process", path)
	}

	return &Journal{path: path, lock: lock}, nil
}

// Load reads the persisted actions. A missing journal is an empty
// queue; a corrupt one is reported so the caller can decide (the queue
// treats it as empty rather than refusing to start).
func (j *Journal) Load() ([]Action, error) {
	data, err := os.ReadFile(j.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read queue journal: %w", err)
	}

	var file journalFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("corrupt queue journal: %w", err)
	}

	// Drop entries that no longer validate rather than poisoning the
	// queue with them.
	actions := file.Actions[:0]
	for _, a := range file.Actions {
		if a.Validate() == nil {
			actions = append(actions, a)
		}
	}
	return actions, nil
}

// Save atomically replaces the journal with the given actions.
func (j *Journal) Save(actions []Action) error {
	if actions == nil {
		actions = []Action{}
	}
	data, err := json.MarshalIndent(journalFile{Format: journalFormat, Actions: actions}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode queue journal: %w", err)
	}

	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write queue journal: %w", err)
	}
	if err := os.Rename(tmp, j.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace queue journal: %w", err)
	}
	return nil
}

// Close releases the journal lock.
func (j *Journal) Close() error {
	if j.lock == nil {
		return nil
	}
	return j.lock.Unlock()
}
