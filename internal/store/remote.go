package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/todosync/todosync/internal/task"
)

// ErrValidation marks write rejections that must never be retried.
var ErrValidation = fmt.Errorf("validation failed")

// Remote is the per-user task collection on a libSQL (Turso) database.
//
// Every network operation is wrapped in the injected RetryPolicy;
// field validation happens before any write and fails fast without
// consuming retry attempts.
type Remote struct {
	conn   *sql.DB
	policy RetryPolicy
	logger *log.Logger
}

// RemoteConfig configures the remote store client.
type RemoteConfig struct {
	// Retry bounds transient-failure retries (default: 3 attempts,
	// linear backoff from 1s).
	Retry *RetryPolicy

	// Logger for store activity (default: stderr logger).
	Logger *log.Logger
}

// OpenRemote connects to the remote collection at the given libSQL URL,
// e.g. "libsql://tasks-myuser.turso.io?authToken=...".
func OpenRemote(url string, config *RemoteConfig) (*Remote, error) {
	conn, err := sql.Open("libsql", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to reach remote database: %w", err)
	}
	return NewRemote(conn, config)
}

// NewRemote wraps an existing connection. Tests use this with an
// embedded SQLite connection instead of a network-backed one.
func NewRemote(conn *sql.DB, config *RemoteConfig) (*Remote, error) {
	if conn == nil {
		return nil, fmt.Errorf("conn cannot be nil")
	}
	if config == nil {
		config = &RemoteConfig{}
	}

	r := &Remote{
		conn:   conn,
		logger: config.Logger,
	}
	if r.logger == nil {
		r.logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	if config.Retry != nil {
		r.policy = *config.Retry
	} else {
		r.policy = DefaultRetryPolicy()
	}

	if err := r.initSchema(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Remote) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS user_tasks (
		user_id     TEXT NOT NULL,
		id          TEXT NOT NULL,
		title       TEXT NOT NULL,
		notes       TEXT NOT NULL DEFAULT '',
		completed   INTEGER NOT NULL DEFAULT 0,
		created_at  INTEGER NOT NULL,
		due_date    TEXT NOT NULL DEFAULT '',
		sort_order  REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, id)
	);
	CREATE INDEX IF NOT EXISTS idx_user_tasks_created ON user_tasks(user_id, created_at DESC);
	`
	if _, err := r.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to create remote schema: %w", err)
	}
	return nil
}

// Close closes the remote connection.
func (r *Remote) Close() error {
	return r.conn.Close()
}

// validateFields enforces the write contract: title required and within
// limits, notes within limits. Violations fail fast without retrying.
func validateFields(title, notes string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if len(title) > task.MaxTitleLen {
		return fmt.Errorf("%w: title must be %d characters or less", ErrValidation, task.MaxTitleLen)
	}
	if len(notes) > task.MaxNotesLen {
		return fmt.Errorf("%w: notes must be %d characters or less", ErrValidation, task.MaxNotesLen)
	}
	return nil
}

// List returns the user's tasks ordered by creation time descending.
func (r *Remote) List(ctx context.Context, userID string) ([]task.Task, error) {
	if userID == "" {
		return nil, fmt.Errorf("userID is required")
	}

	var tasks []task.Task
	err := r.policy.Do(ctx, func() error {
		rows, err := r.conn.QueryContext(ctx, `
			SELECT id, title, notes, completed, created_at, due_date, sort_order
			FROM user_tasks WHERE user_id = ? ORDER BY created_at DESC`, userID)
		if err != nil {
			return fmt.Errorf("failed to list tasks: %w", err)
		}
		defer rows.Close()

		tasks = tasks[:0]
		for rows.Next() {
			var t task.Task
			var completed int
			if err := rows.Scan(&t.ID, &t.Title, &t.Notes, &completed,
				&t.CreatedAt, &t.DueDate, &t.Order); err != nil {
				return fmt.Errorf("failed to scan task: %w", err)
			}
			t.Completed = completed != 0
			t.SyncStatus = task.StatusSynced
			tasks = append(tasks, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// Create inserts a task into the user's collection and returns the
// id it was stored under. A task carrying a local-origin id is assigned
// a fresh remote identity.
func (r *Remote) Create(ctx context.Context, userID string, t task.Task) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("userID is required")
	}
	if err := validateFields(t.Title, t.Notes); err != nil {
		return "", err
	}

	t.SetDefaults()
	id := t.ID
	if task.HasLocalID(id) {
		id = strings.TrimPrefix(id, task.LocalIDPrefix)
	}

	err := r.policy.Do(ctx, func() error {
		_, err := r.conn.ExecContext(ctx, `
			INSERT INTO user_tasks (user_id, id, title, notes, completed, created_at, due_date, sort_order)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			userID, id, t.Title, t.Notes, boolToInt(t.Completed), t.CreatedAt, t.DueDate, t.Order)
		if err != nil {
			return fmt.Errorf("failed to create task: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Update applies a partial update to a task in the user's collection.
// Returns false when the task does not exist.
func (r *Remote) Update(ctx context.Context, userID, id string, p Patch) (bool, error) {
	if userID == "" {
		return false, fmt.Errorf("userID is required")
	}
	if p.Title != nil {
		if err := validateFields(*p.Title, ""); err != nil {
			return false, err
		}
	}
	if p.Notes != nil && len(*p.Notes) > task.MaxNotesLen {
		return false, fmt.Errorf("%w: notes must be %d characters or less", ErrValidation, task.MaxNotesLen)
	}

	var sets []string
	var args []any
	if p.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *p.Title)
	}
	if p.Notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, *p.Notes)
	}
	if p.Completed != nil {
		sets = append(sets, "completed = ?")
		args = append(args, boolToInt(*p.Completed))
	}
	if p.DueDate != nil {
		sets = append(sets, "due_date = ?")
		args = append(args, *p.DueDate)
	}
	if p.Order != nil {
		sets = append(sets, "sort_order = ?")
		args = append(args, *p.Order)
	}
	if len(sets) == 0 {
		return false, nil
	}
	args = append(args, userID, id)

	var updated bool
	err := r.policy.Do(ctx, func() error {
		res, err := r.conn.ExecContext(ctx,
			"UPDATE user_tasks SET "+strings.Join(sets, ", ")+" WHERE user_id = ? AND id = ?",
			args...)
		if err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read update result: %w", err)
		}
		updated = n > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return updated, nil
}

// Delete removes a task from the user's collection. Returns false when
// the task does not exist.
func (r *Remote) Delete(ctx context.Context, userID, id string) (bool, error) {
	if userID == "" {
		return false, fmt.Errorf("userID is required")
	}

	var deleted bool
	err := r.policy.Do(ctx, func() error {
		res, err := r.conn.ExecContext(ctx,
			"DELETE FROM user_tasks WHERE user_id = ? AND id = ?", userID, id)
		if err != nil {
			return fmt.Errorf("failed to delete task: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read delete result: %w", err)
		}
		deleted = n > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}
