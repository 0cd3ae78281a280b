package store

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/todosync/todosync/internal/task"
)

// DefaultMaxLocalTasks is the local store quota. Saves that would exceed
// it trigger the eviction policy rather than failing outright.
const DefaultMaxLocalTasks = 1000

// evictFraction is the share of oldest tasks dropped on a quota failure
// before the write is retried once.
const evictFraction = 0.2

// Usage reports local store capacity.
type Usage struct {
	Used      int `json:"used"`
	Available int `json:"available"`
}

// Patch carries a partial task update. Nil fields are left unchanged.
type Patch struct {
	Title      *string
	Notes      *string
	Completed  *bool
	DueDate    *string
	Order      *float64
	SyncStatus *task.SyncStatus
}

// Local is the on-device task store, backed by embedded SQLite in WAL
// mode. When the database file cannot be opened the store degrades to a
// volatile in-memory list so the application keeps working; the
// degradation is logged, not surfaced as a hard failure.
type Local struct {
	mu       sync.Mutex
	conn     *sql.DB
	path     string
	maxTasks int
	logger   *log.Logger

	// in-memory fallback, active when conn is nil
	mem []task.Task
}

// LocalConfig configures the local store.
type LocalConfig struct {
	// MaxTasks caps how many tasks the store holds (default 1000).
	MaxTasks int

	// Logger for store activity (default: stderr logger).
	Logger *log.Logger
}

// OpenLocal opens (or creates) the local task database at path.
//
// If the file cannot be opened or the schema cannot be created, the
// store falls back to in-memory operation instead of failing: local
// persistence is best-effort by contract.
func OpenLocal(path string, config *LocalConfig) (*Local, error) {
	if config == nil {
		config = &LocalConfig{}
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}
	maxTasks := config.MaxTasks
	if maxTasks <= 0 {
		maxTasks = DefaultMaxLocalTasks
	}

	l := &Local{
		path:     path,
		maxTasks: maxTasks,
		logger:   logger,
	}

	conn, err := openSQLite(path)
	if err != nil {
		logger.Printf("WARNING: local database unavailable, using in-memory fallback: %v", err)
		return l, nil
	}

	if err := initLocalSchema(conn); err != nil {
		_ = conn.Close()
		logger.Printf("WARNING: local schema init failed, using in-memory fallback: %v", err)
		return l, nil
	}

	l.conn = conn
	return l, nil
}

// NewMemoryLocal returns a Local running purely on the volatile
// in-memory list, never touching disk.
func NewMemoryLocal(config *LocalConfig) *Local {
	if config == nil {
		config = &LocalConfig{}
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}
	maxTasks := config.MaxTasks
	if maxTasks <= 0 {
		maxTasks = DefaultMaxLocalTasks
	}
	return &Local{maxTasks: maxTasks, logger: logger}
}

// openSQLite opens an embedded SQLite database with WAL mode and a busy
// timeout, creating the parent directory as needed.
func openSQLite(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return conn, nil
}

func initLocalSchema(conn *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id          TEXT PRIMARY KEY,
		title       TEXT NOT NULL,
		notes       TEXT NOT NULL DEFAULT '',
		completed   INTEGER NOT NULL DEFAULT 0,
		created_at  INTEGER NOT NULL,
		due_date    TEXT NOT NULL DEFAULT '',
		sort_order  REAL NOT NULL DEFAULT 0,
		sync_status TEXT NOT NULL DEFAULT 'local-only'
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks(created_at);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(sync_status);
	`
	if _, err := conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the underlying database, checkpointing the WAL first.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return nil
	}
	if _, err := l.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		l.logger.Printf("WARNING: failed to checkpoint WAL: %v", err)
	}
	err := l.conn.Close()
	l.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// InMemory reports whether the store is running on the volatile fallback.
func (l *Local) InMemory() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn == nil
}

// Get returns all stored tasks. Malformed rows are logged and dropped,
// never returned and never fatal.
func (l *Local) Get() ([]task.Task, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		out := make([]task.Task, len(l.mem))
		copy(out, l.mem)
		return out, nil
	}

	rows, err := l.conn.Query(`
		SELECT id, title, notes, completed, created_at, due_date, sort_order, sync_status
		FROM tasks ORDER BY sort_order, created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		var t task.Task
		var completed int
		if err := rows.Scan(&t.ID, &t.Title, &t.Notes, &completed,
			&t.CreatedAt, &t.DueDate, &t.Order, &t.SyncStatus); err != nil {
			l.logger.Printf("WARNING: skipping unreadable task row: %v", err)
			continue
		}
		t.Completed = completed != 0

		if err := t.Validate(); err != nil {
			l.logger.Printf("WARNING: dropping invalid stored task %s: %v", t.ID, err)
			continue
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tasks: %w", err)
	}

	return tasks, nil
}

// Save replaces the entire task list. Tasks failing validation are
// logged and dropped. A save exceeding the quota evicts the oldest 20%
// of the incoming list and retries once.
func (l *Local) Save(tasks []task.Task) error {
	valid := make([]task.Task, 0, len(tasks))
	for _, t := range tasks {
		t.SetDefaults()
		if err := t.Validate(); err != nil {
			l.logger.Printf("WARNING: dropping invalid task %s on save: %v", t.ID, err)
			continue
		}
		valid = append(valid, t)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(valid) > l.maxTasks {
		valid = l.evictOldest(valid)
		if len(valid) > l.maxTasks {
			return fmt.Errorf("task list exceeds quota of %d even after eviction", l.maxTasks)
		}
	}

	if l.conn == nil {
		l.mem = valid
		return nil
	}
	return l.replaceAll(valid)
}

// evictOldest drops the oldest 20% of tasks by creation time.
func (l *Local) evictOldest(tasks []task.Task) []task.Task {
	n := int(float64(len(tasks)) * evictFraction)
	if n < 1 {
		n = 1
	}

	sorted := make([]task.Task, len(tasks))
	copy(sorted, tasks)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt < sorted[j].CreatedAt
	})

	l.logger.Printf("WARNING: quota exceeded, evicting %d oldest tasks", n)
	return sorted[n:]
}

// replaceAll writes the task list in a single transaction so a partial
// write can never persist.
func (l *Local) replaceAll(tasks []task.Task) error {
	tx, err := l.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM tasks"); err != nil {
		return fmt.Errorf("failed to clear tasks: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO tasks (id, title, notes, completed, created_at, due_date, sort_order, sync_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tasks {
		if _, err := stmt.Exec(t.ID, t.Title, t.Notes, boolToInt(t.Completed),
			t.CreatedAt, t.DueDate, t.Order, string(t.SyncStatus)); err != nil {
			return fmt.Errorf("failed to insert task %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Add stores a new task, assigning a local id, creation timestamp, and
// the next sort key when unset. Returns the assigned id.
func (l *Local) Add(t task.Task) (string, error) {
	existing, err := l.Get()
	if err != nil {
		return "", err
	}

	t.SetDefaults()
	if t.Order == 0 {
		t.Order = task.NextOrder(existing)
	}
	if err := t.Validate(); err != nil {
		return "", fmt.Errorf("invalid task: %w", err)
	}

	if err := l.Save(append(existing, t)); err != nil {
		return "", err
	}
	return t.ID, nil
}

// Update applies a partial update to the task with the given id.
// Returns false when no such task exists.
func (l *Local) Update(id string, p Patch) (bool, error) {
	tasks, err := l.Get()
	if err != nil {
		return false, err
	}

	found := false
	for i := range tasks {
		if tasks[i].ID != id {
			continue
		}
		applyPatch(&tasks[i], p)
		if err := tasks[i].Validate(); err != nil {
			return false, fmt.Errorf("invalid update: %w", err)
		}
		found = true
		break
	}
	if !found {
		return false, nil
	}

	return true, l.Save(tasks)
}

func applyPatch(t *task.Task, p Patch) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Notes != nil {
		t.Notes = *p.Notes
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
	}
	if p.Order != nil {
		t.Order = *p.Order
	}
	if p.SyncStatus != nil {
		t.SyncStatus = *p.SyncStatus
	}
}

// Delete removes the task with the given id. Returns false when no such
// task exists.
func (l *Local) Delete(id string) (bool, error) {
	tasks, err := l.Get()
	if err != nil {
		return false, err
	}

	kept := tasks[:0]
	found := false
	for _, t := range tasks {
		if t.ID == id {
			found = true
			continue
		}
		kept = append(kept, t)
	}
	if !found {
		return false, nil
	}

	return true, l.Save(kept)
}

// Clear removes every stored task.
func (l *Local) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		l.mem = nil
		return nil
	}
	if _, err := l.conn.Exec("DELETE FROM tasks"); err != nil {
		return fmt.Errorf("failed to clear tasks: %w", err)
	}
	return nil
}

// Usage reports how much of the quota is in use.
func (l *Local) Usage() (*Usage, error) {
	tasks, err := l.Get()
	if err != nil {
		return nil, err
	}
	return &Usage{
		Used:      len(tasks),
		Available: l.maxTasks - len(tasks),
	}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
