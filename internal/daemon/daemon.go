// Package daemon provides the background auto-sync daemon.
//
// The daemon:
// 1. Watches the data directory for task and queue changes
// 2. Subscribes to the network monitor for connectivity transitions
// 3. Drains the offline queue and runs a sync pass when conditions allow
// 4. Handles graceful shutdown
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/todosync/todosync/internal/netmon"
	"github.com/todosync/todosync/internal/queue"
	"github.com/todosync/todosync/internal/syncer"
)

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often a sync pass runs regardless of local
	// activity.
	SyncInterval time.Duration

	// DebounceInterval is how long to wait before reacting to file
	// changes. This batches rapid updates together.
	DebounceInterval time.Duration

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     5 * time.Minute,
		DebounceInterval: 500 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon ties the watcher, network monitor, queue, and syncer together.
type Daemon struct {
	userID  string
	dataDir string
	sync    *syncer.Syncer
	queue   *queue.Queue
	monitor *netmon.Monitor
	config  *Config

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time // filepath -> timestamp
	changeQueueMu sync.Mutex

	state   RunState
	stateMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon. Use Start() to begin watching and syncing.
func New(userID, dataDir string, s *syncer.Syncer, q *queue.Queue, m *netmon.Monitor, config *Config) (*Daemon, error) {
	if userID == "" {
		return nil, fmt.Errorf("userID cannot be empty")
	}
	if dataDir == "" {
		return nil, fmt.Errorf("dataDir cannot be empty")
	}
	if s == nil || q == nil || m == nil {
		return nil, fmt.Errorf("syncer, queue, and monitor are all required")
	}
	if config == nil {
		config = DefaultConfig()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		userID:      userID,
		dataDir:     dataDir,
		sync:        s,
		queue:       q,
		monitor:     m,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// The daemon will:
// 1. Run an initial sync pass if the connection allows
// 2. Watch the data directory for changes
// 3. React to connectivity transitions
// 4. Run periodic sync passes
//
// This blocks until ctx is cancelled or an error occurs.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	d.loadState()

	if err := d.watcher.Add(d.dataDir); err != nil {
		return fmt.Errorf("failed to watch data directory: %w", err)
	}
	d.config.Logger.Printf("Watching: %s", d.dataDir)

	unsubNet := d.monitor.Subscribe(d.onNetworkChange)
	defer unsubNet()

	// Initial pass picks up whatever accumulated while the daemon was
	// down.
	d.trigger("startup")

	d.wg.Add(3)
	go d.watchFileEvents()
	go d.processChangeQueue()
	go d.periodicSync()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}

	d.wg.Wait()

	if err := d.saveState(); err != nil {
		d.config.Logger.Printf("Error saving run state: %v", err)
	}

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// onNetworkChange reacts to connectivity transitions. Regaining a
// usable connection is the moment the offline queue was waiting for.
func (d *Daemon) onNetworkChange(s netmon.State) {
	info := netmon.DeriveInfo(s)
	d.config.Logger.Printf("Network change: online=%v quality=%s", s.Online, info.ConnectionQuality)

	if info.CanSync {
		d.trigger("connectivity restored")
	}
}

// watchFileEvents monitors filesystem events and queues changes.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			// Only care about Create, Write, Remove
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove) == 0 {
				continue
			}

			if !watchedFile(event.Name) {
				continue
			}

			d.config.Logger.Printf("File event: %s %s", event.Op, event.Name)
			d.queueChange(event.Name)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// watchedFile reports whether a path is one of the stores the daemon
// reacts to: the task database or the queue journal. Temp and lock
// files churn constantly and are ignored.
func watchedFile(path string) bool {
	switch filepath.Ext(path) {
	case ".db", ".json":
		return true
	}
	return false
}

// queueChange adds a file to the change queue with debouncing.
func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[path] = time.Now()
}

// processChangeQueue reacts to queued file changes once they settle.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			if d.drainPendingChanges() {
				d.trigger("local changes")
			}
		}
	}
}

// drainPendingChanges empties the change queue, reporting whether any
// entry had settled past the debounce interval.
func (d *Daemon) drainPendingChanges() bool {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	now := time.Now()
	settled := false
	for path, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		delete(d.changeQueue, path)
		settled = true
	}
	return settled
}

// periodicSync runs a sync pass on a fixed interval.
func (d *Daemon) periodicSync() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.trigger("interval")
		}
	}
}

// trigger drains the offline queue and runs one sync pass, if the
// connection permits. A pass already in flight is left alone.
func (d *Daemon) trigger(reason string) {
	if !d.monitor.ShouldSync() {
		d.config.Logger.Printf("Skipping sync (%s): %s", reason, d.monitor.GetConnectionSummary())
		return
	}

	d.config.Logger.Printf("Sync triggered: %s", reason)

	if d.queue.Len() > 0 {
		if err := d.queue.Process(d.ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.config.Logger.Printf("Queue drain failed: %v", err)
		}
	}

	result, err := d.sync.StartSync(d.ctx, d.userID, syncer.Options{})
	if err != nil {
		if !errors.Is(err, syncer.ErrSyncInProgress) {
			d.config.Logger.Printf("Sync failed to start: %v", err)
		}
		return
	}

	verdict := syncer.ValidateResult(result)
	d.config.Logger.Printf("Sync finished: %s", verdict.Message)
	d.recordRun(verdict.Message)
}

func (d *Daemon) recordRun(message string) {
	d.stateMu.Lock()
	d.state.LastSyncAt = time.Now()
	d.state.LastMessage = message
	d.state.SyncCount++
	d.stateMu.Unlock()

	if err := d.saveState(); err != nil {
		d.config.Logger.Printf("Error saving run state: %v", err)
	}
}
