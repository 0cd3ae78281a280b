package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/todosync/todosync/internal/task"
)

// setupRemote backs the remote client with an embedded SQLite file so
// the contract can be exercised without a network.
func setupRemote(t *testing.T, policy *RetryPolicy) *Remote {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "remote.db")
	conn, err := sql.Open("sqlite3", "file:"+dbPath)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	r, err := NewRemote(conn, &RemoteConfig{Retry: policy, Logger: testLogger()})
	if err != nil {
		t.Fatalf("failed to create remote store: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func noWait() *RetryPolicy {
	return &RetryPolicy{MaxAttempts: 3, Backoff: func(int) time.Duration { return 0 }}
}

func TestRemote_CreateAndList(t *testing.T) {
	r := setupRemote(t, noWait())
	ctx := context.Background()

	older := task.Task{ID: "local-a", Title: "older", CreatedAt: 1000}
	newer := task.Task{ID: "local-b", Title: "newer", CreatedAt: 2000}

	idA, err := r.Create(ctx, "user-1", older)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if task.HasLocalID(idA) {
		t.Errorf("remote id must not keep the local prefix, got %s", idA)
	}
	if _, err := r.Create(ctx, "user-1", newer); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	tasks, err := r.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].Title != "newer" {
		t.Errorf("expected creation-time descending order, got %q first", tasks[0].Title)
	}
	if tasks[0].SyncStatus != task.StatusSynced {
		t.Errorf("listed tasks must be tagged synced, got %s", tasks[0].SyncStatus)
	}
}

func TestRemote_ListIsolatesUsers(t *testing.T) {
	r := setupRemote(t, noWait())
	ctx := context.Background()

	if _, err := r.Create(ctx, "user-1", task.Task{Title: "mine", CreatedAt: 1000}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	tasks, err := r.List(ctx, "user-2")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("expected empty collection for other user, got %d tasks", len(tasks))
	}
}

func TestRemote_ValidationFailsFast(t *testing.T) {
	r := setupRemote(t, noWait())
	ctx := context.Background()

	_, err := r.Create(ctx, "user-1", task.Task{Title: "   ", CreatedAt: 1000})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for blank title, got %v", err)
	}

	_, err = r.Create(ctx, "user-1", task.Task{
		Title:     strings.Repeat("x", task.MaxTitleLen+1),
		CreatedAt: 1000,
	})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for long title, got %v", err)
	}

	longNotes := strings.Repeat("x", task.MaxNotesLen+1)
	_, err = r.Update(ctx, "user-1", "any", Patch{Notes: &longNotes})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for long notes, got %v", err)
	}
}

func TestRemote_UpdateAndDelete(t *testing.T) {
	r := setupRemote(t, noWait())
	ctx := context.Background()

	id, err := r.Create(ctx, "user-1", task.Task{Title: "Buy milk", CreatedAt: 1000})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	completed := true
	ok, err := r.Update(ctx, "user-1", id, Patch{Completed: &completed})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !ok {
		t.Fatal("expected update to find the task")
	}

	tasks, _ := r.List(ctx, "user-1")
	if len(tasks) != 1 || !tasks[0].Completed {
		t.Errorf("expected completed task, got %+v", tasks)
	}

	ok, err = r.Delete(ctx, "user-1", id)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !ok {
		t.Fatal("expected delete to find the task")
	}

	ok, err = r.Delete(ctx, "user-1", id)
	if err != nil {
		t.Fatalf("second Delete errored: %v", err)
	}
	if ok {
		t.Error("expected delete of missing task to report false")
	}
}

func TestRemote_UpdateMissingTask(t *testing.T) {
	r := setupRemote(t, noWait())

	completed := true
	ok, err := r.Update(context.Background(), "user-1", "missing", Patch{Completed: &completed})
	if err != nil {
		t.Fatalf("Update errored: %v", err)
	}
	if ok {
		t.Error("expected update of missing task to report false")
	}
}
