package store

import (
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/todosync/todosync/internal/task"
)

func setupLocal(t *testing.T, config *LocalConfig) *Local {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "tasks.db")
	l, err := OpenLocal(dbPath, config)
	if err != nil {
		t.Fatalf("failed to open local store: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })

	if l.InMemory() {
		t.Fatal("expected a file-backed store in tests")
	}
	return l
}

func testLogger() *log.Logger {
	return log.New(os.Stderr, "[test] ", 0)
}

func TestLocal_AddAndGet(t *testing.T) {
	l := setupLocal(t, &LocalConfig{Logger: testLogger()})

	id, err := l.Add(task.Task{Title: "Buy milk"})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if !task.HasLocalID(id) {
		t.Errorf("expected local-origin id, got %s", id)
	}

	tasks, err := l.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0].Title != "Buy milk" {
		t.Errorf("unexpected title %q", tasks[0].Title)
	}
	if tasks[0].SyncStatus != task.StatusLocalOnly {
		t.Errorf("expected local-only status, got %s", tasks[0].SyncStatus)
	}
	if tasks[0].Order != task.OrderStep {
		t.Errorf("expected first order key %d, got %v", task.OrderStep, tasks[0].Order)
	}
}

func TestLocal_OrderKeysGrow(t *testing.T) {
	l := setupLocal(t, nil)

	if _, err := l.Add(task.Task{Title: "first"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := l.Add(task.Task{Title: "second"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	tasks, err := l.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if tasks[1].Order != 2*task.OrderStep {
		t.Errorf("expected second order key %d, got %v", 2*task.OrderStep, tasks[1].Order)
	}
}

func TestLocal_UpdateAndDelete(t *testing.T) {
	l := setupLocal(t, nil)

	id, err := l.Add(task.Task{Title: "Buy milk"})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	completed := true
	ok, err := l.Update(id, Patch{Completed: &completed})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !ok {
		t.Fatal("expected update to find the task")
	}

	tasks, _ := l.Get()
	if !tasks[0].Completed {
		t.Error("expected task to be completed")
	}

	ok, err = l.Delete(id)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !ok {
		t.Fatal("expected delete to find the task")
	}

	tasks, _ = l.Get()
	if len(tasks) != 0 {
		t.Errorf("expected empty store after delete, got %d tasks", len(tasks))
	}
}

func TestLocal_UpdateMissingTask(t *testing.T) {
	l := setupLocal(t, nil)

	title := "nope"
	ok, err := l.Update("missing", Patch{Title: &title})
	if err != nil {
		t.Fatalf("Update errored: %v", err)
	}
	if ok {
		t.Error("expected update of missing task to report false")
	}
}

func TestLocal_SaveDropsInvalidTasks(t *testing.T) {
	l := setupLocal(t, &LocalConfig{Logger: testLogger()})

	tasks := []task.Task{
		{ID: "local-ok", Title: "valid", CreatedAt: 1000},
		{ID: "local-bad", Title: "", CreatedAt: 1000}, // empty title
	}
	if err := l.Save(tasks); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := l.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "local-ok" {
		t.Errorf("expected only the valid task to survive, got %+v", got)
	}
}

func TestLocal_QuotaEviction(t *testing.T) {
	l := setupLocal(t, &LocalConfig{MaxTasks: 10, Logger: testLogger()})

	tasks := make([]task.Task, 12)
	for i := range tasks {
		tasks[i] = task.Task{
			ID:        task.NewLocalID(),
			Title:     "task",
			CreatedAt: int64(1000 + i),
		}
	}

	if err := l.Save(tasks); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := l.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got) > 10 {
		t.Fatalf("quota exceeded: %d tasks stored", len(got))
	}

	// The evicted tasks must be the oldest ones.
	for _, tk := range got {
		if tk.CreatedAt < 1002 {
			t.Errorf("expected oldest tasks evicted, found created_at %d", tk.CreatedAt)
		}
	}
}

func TestLocal_InMemoryFallback(t *testing.T) {
	// A path whose parent is an existing file cannot be created, forcing
	// the fallback.
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatalf("failed to create blocker file: %v", err)
	}

	l, err := OpenLocal(filepath.Join(blocker, "tasks.db"), &LocalConfig{Logger: testLogger()})
	if err != nil {
		t.Fatalf("OpenLocal must not fail hard: %v", err)
	}
	if !l.InMemory() {
		t.Fatal("expected in-memory fallback")
	}

	id, err := l.Add(task.Task{Title: "still works"})
	if err != nil {
		t.Fatalf("Add failed in memory mode: %v", err)
	}
	tasks, err := l.Get()
	if err != nil {
		t.Fatalf("Get failed in memory mode: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != id {
		t.Errorf("expected the added task, got %+v", tasks)
	}
}

func TestLocal_ClearAndUsage(t *testing.T) {
	l := setupLocal(t, &LocalConfig{MaxTasks: 50})

	for i := 0; i < 3; i++ {
		if _, err := l.Add(task.Task{Title: "task"}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	usage, err := l.Usage()
	if err != nil {
		t.Fatalf("Usage failed: %v", err)
	}
	if usage.Used != 3 || usage.Available != 47 {
		t.Errorf("unexpected usage %+v", usage)
	}

	if err := l.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	tasks, _ := l.Get()
	if len(tasks) != 0 {
		t.Errorf("expected empty store after clear, got %d", len(tasks))
	}
}

func TestLocal_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "tasks.db")

	l, err := OpenLocal(dbPath, nil)
	if err != nil {
		t.Fatalf("OpenLocal failed: %v", err)
	}
	id, err := l.Add(task.Task{Title: "persisted"})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := OpenLocal(dbPath, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	tasks, err := reopened.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != id {
		t.Errorf("expected persisted task after reopen, got %+v", tasks)
	}
}
