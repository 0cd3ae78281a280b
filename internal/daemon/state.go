package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// stateFileName is the daemon's run-state file inside the data dir.
const stateFileName = "daemon.toml"

// RunState is what the daemon remembers across restarts. It is advisory
// (status display, debugging), so load failures are non-fatal.
type RunState struct {
	PID         int       `toml:"pid"`
	StartedAt   time.Time `toml:"started_at"`
	LastSyncAt  time.Time `toml:"last_sync_at"`
	LastMessage string    `toml:"last_message"`
	SyncCount   int       `toml:"sync_count"`
}

func (d *Daemon) statePath() string {
	return filepath.Join(d.dataDir, stateFileName)
}

// loadState restores the previous run state and stamps this run's
// identity.
func (d *Daemon) loadState() {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()

	if _, err := toml.DecodeFile(d.statePath(), &d.state); err != nil && !os.IsNotExist(err) {
		d.config.Logger.Printf("WARNING: unreadable run state, starting fresh: %v", err)
		d.state = RunState{}
	}
	d.state.PID = os.Getpid()
	d.state.StartedAt = time.Now()
}

// saveState writes the run state through a temp file and rename.
func (d *Daemon) saveState() error {
	d.stateMu.Lock()
	state := d.state
	d.stateMu.Unlock()

	path := d.statePath()
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create run state file: %w", err)
	}

	if err := toml.NewEncoder(f).Encode(state); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to encode run state: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close run state file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace run state file: %w", err)
	}
	return nil
}

// ReadRunState reads another process's run state for status display.
func ReadRunState(dataDir string) (*RunState, error) {
	var state RunState
	if _, err := toml.DecodeFile(filepath.Join(dataDir, stateFileName), &state); err != nil {
		return nil, fmt.Errorf("failed to read daemon run state: %w", err)
	}
	return &state, nil
}
