// Package task defines the task data model shared by the stores, the
// conflict engine, and the sync orchestrator.
//
// Tasks are flat records with last-write-wins friendly fields. Creation
// timestamps are epoch milliseconds so that recency comparisons and
// tie-breaking are plain integer arithmetic on every platform.
package task

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalIDPrefix marks tasks created on this device before they have been
// reconciled with the remote collection. The prefix is a human-readable
// origin marker only; SyncStatus is the source of truth for ownership.
const LocalIDPrefix = "local-"

// OrderStep is the gap left between consecutive sort keys so tasks can be
// inserted between neighbors without renumbering the whole list.
const OrderStep = 1000

// Field length limits enforced before any write.
const (
	MaxTitleLen = 500
	MaxNotesLen = 2000
)

// SyncStatus tags where a task currently lives relative to the remote
// collection.
type SyncStatus string

const (
	// StatusLocalOnly means the task exists only in the local store.
	StatusLocalOnly SyncStatus = "local-only"

	// StatusSynced means the task is mirrored in the remote collection.
	StatusSynced SyncStatus = "synced"

	// StatusPendingUpload means the task is queued for upload.
	StatusPendingUpload SyncStatus = "pending-upload"

	// StatusPendingDelete means a remote delete has been queued but not
	// yet applied.
	StatusPendingDelete SyncStatus = "pending-delete"
)

// Task is a single to-do item.
type Task struct {
	// ===== Identity =====
	ID         string     `json:"id" yaml:"id"`
	SyncStatus SyncStatus `json:"sync_status,omitempty" yaml:"sync_status,omitempty"`

	// ===== Content =====
	Title string `json:"title" yaml:"title"`
	Notes string `json:"notes,omitempty" yaml:"notes,omitempty"`

	// ===== State =====
	Completed bool `json:"completed" yaml:"completed"`

	// ===== Timestamps & Ordering =====
	CreatedAt int64   `json:"created_at" yaml:"created_at"`                 // epoch milliseconds
	DueDate   string  `json:"due_date,omitempty" yaml:"due_date,omitempty"` // YYYY-MM-DD
	Order     float64 `json:"order,omitempty" yaml:"order,omitempty"`       // 0 = unset
}

// NewLocalID returns a fresh identifier for a locally created task.
func NewLocalID() string {
	return LocalIDPrefix + uuid.New().String()
}

// HasLocalID reports whether the id carries the local origin marker.
func HasLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// Now returns the current time as epoch milliseconds.
func Now() int64 {
	return time.Now().UnixMilli()
}

// Validate checks field constraints. Tasks failing validation must never
// reach the conflict engine or either store.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	title := strings.TrimSpace(t.Title)
	if title == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > MaxTitleLen {
		return fmt.Errorf("title must be %d characters or less (got %d)", MaxTitleLen, len(t.Title))
	}
	if len(t.Notes) > MaxNotesLen {
		return fmt.Errorf("notes must be %d characters or less (got %d)", MaxNotesLen, len(t.Notes))
	}
	if t.CreatedAt <= 0 {
		return fmt.Errorf("created_at is required")
	}
	if t.DueDate != "" {
		if _, err := time.Parse("2006-01-02", t.DueDate); err != nil {
			return fmt.Errorf("due_date must be YYYY-MM-DD (got %q)", t.DueDate)
		}
	}
	switch t.SyncStatus {
	case "", StatusLocalOnly, StatusSynced, StatusPendingUpload, StatusPendingDelete:
	default:
		return fmt.Errorf("unknown sync_status %q", t.SyncStatus)
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (t *Task) SetDefaults() {
	if t.ID == "" {
		t.ID = NewLocalID()
	}
	if t.CreatedAt == 0 {
		t.CreatedAt = Now()
	}
	if t.SyncStatus == "" {
		if HasLocalID(t.ID) {
			t.SyncStatus = StatusLocalOnly
		} else {
			t.SyncStatus = StatusSynced
		}
	}
}

// CreatedTime returns CreatedAt as a time.Time.
func (t *Task) CreatedTime() time.Time {
	return time.UnixMilli(t.CreatedAt)
}

// Clone returns a copy of the task.
func (t Task) Clone() Task {
	return t
}

// NextOrder returns the sort key for a task appended to the list:
// max(existing order) + OrderStep.
func NextOrder(tasks []Task) float64 {
	var max float64
	for _, t := range tasks {
		if t.Order > max {
			max = t.Order
		}
	}
	return max + OrderStep
}

// Renumber rewrites the sort keys of tasks to (position+1) * OrderStep,
// following the order of the input slice. The input is not modified; a
// renumbered copy is returned.
func Renumber(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		out[i] = t
		out[i].Order = float64(i+1) * OrderStep
	}
	return out
}

// SortForDisplay orders tasks by sort key ascending, falling back to
// creation time for tasks without an explicit key.
func SortForDisplay(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Order != 0 && b.Order != 0 && a.Order != b.Order {
			return a.Order < b.Order
		}
		if a.Order != 0 && b.Order == 0 {
			return true
		}
		if a.Order == 0 && b.Order != 0 {
			return false
		}
		return a.CreatedAt < b.CreatedAt
	})
}
