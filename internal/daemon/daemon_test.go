package daemon

import (
	"context"
	"log"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/todosync/todosync/internal/netmon"
	"github.com/todosync/todosync/internal/queue"
	"github.com/todosync/todosync/internal/syncer"
	"github.com/todosync/todosync/internal/task"
)

func testLogger() *log.Logger {
	return log.New(os.Stderr, "[test] ", 0)
}

type stubLocal struct {
	tasks []task.Task
}

func (s *stubLocal) Get() ([]task.Task, error) { return s.tasks, nil }
func (s *stubLocal) Save([]task.Task) error    { return nil }
func (s *stubLocal) Clear() error              { s.tasks = nil; return nil }

type stubRemote struct {
	lists int32
}

func (s *stubRemote) List(context.Context, string) ([]task.Task, error) {
	atomic.AddInt32(&s.lists, 1)
	return nil, nil
}

func (s *stubRemote) Create(_ context.Context, _ string, t task.Task) (string, error) {
	return "remote-" + t.ID, nil
}

func newTestDaemon(t *testing.T, online bool) (*Daemon, *stubRemote) {
	t.Helper()

	remote := &stubRemote{}
	local := &stubLocal{tasks: []task.Task{{
		ID:         task.LocalIDPrefix + "a",
		SyncStatus: task.StatusLocalOnly,
		Title:      "Buy milk",
		CreatedAt:  1000,
	}}}
	s := syncer.New(local, remote, 0, testLogger())

	q, err := queue.New(&queue.Config{Logger: testLogger()})
	if err != nil {
		t.Fatalf("failed to create queue: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })

	sig := netmon.Signal{Online: online, EffectiveType: "4g"}
	m := netmon.New(netmon.NewStaticSource(sig), testLogger())
	t.Cleanup(m.Destroy)

	config := DefaultConfig()
	config.Logger = testLogger()
	d, err := New("user-1", t.TempDir(), s, q, m, config)
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}
	t.Cleanup(func() { _ = d.watcher.Close() })
	return d, remote
}

func TestNew_ValidatesInputs(t *testing.T) {
	if _, err := New("", t.TempDir(), nil, nil, nil, nil); err == nil {
		t.Error("expected error for empty user id")
	}
	if _, err := New("user-1", "", nil, nil, nil, nil); err == nil {
		t.Error("expected error for empty data dir")
	}
	if _, err := New("user-1", t.TempDir(), nil, nil, nil, nil); err == nil {
		t.Error("expected error for missing collaborators")
	}
}

func TestTrigger_SkipsWhileOffline(t *testing.T) {
	d, remote := newTestDaemon(t, false)

	d.trigger("test")

	if n := atomic.LoadInt32(&remote.lists); n != 0 {
		t.Errorf("offline trigger must not touch the remote store, got %d calls", n)
	}
}

func TestTrigger_RunsSyncAndRecordsState(t *testing.T) {
	d, remote := newTestDaemon(t, true)
	d.loadState()

	d.trigger("test")

	if n := atomic.LoadInt32(&remote.lists); n != 1 {
		t.Errorf("expected one remote list, got %d", n)
	}

	state, err := ReadRunState(d.dataDir)
	if err != nil {
		t.Fatalf("failed to read run state: %v", err)
	}
	if state.SyncCount != 1 {
		t.Errorf("expected 1 recorded sync, got %d", state.SyncCount)
	}
	if state.LastMessage == "" {
		t.Error("expected a recorded result message")
	}
	if state.LastSyncAt.IsZero() {
		t.Error("expected LastSyncAt to be stamped")
	}
}

func TestRunState_SurvivesReload(t *testing.T) {
	d, _ := newTestDaemon(t, true)

	d.loadState()
	d.recordRun("Synced 3 tasks")

	d2, _ := newTestDaemon(t, true)
	d2.dataDir = d.dataDir
	d2.loadState()

	d2.stateMu.Lock()
	defer d2.stateMu.Unlock()
	if d2.state.SyncCount != 1 || d2.state.LastMessage != "Synced 3 tasks" {
		t.Errorf("expected persisted run state, got %+v", d2.state)
	}
}

func TestWatchedFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/data/tasks.db", true},
		{"/data/queue.json", true},
		{"/data/queue.json.lock", false},
		{"/data/queue.json.tmp", false},
		{"/data/daemon.toml", false},
	}
	for _, tt := range tests {
		if got := watchedFile(tt.path); got != tt.want {
			t.Errorf("watchedFile(%s): expected %v, got %v", tt.path, tt.want, got)
		}
	}
}

func TestDrainPendingChanges_Debounces(t *testing.T) {
	d, _ := newTestDaemon(t, true)
	d.config.DebounceInterval = 50 * time.Millisecond

	d.queueChange("/data/tasks.db")
	if d.drainPendingChanges() {
		t.Error("change must not settle before the debounce interval")
	}

	time.Sleep(60 * time.Millisecond)
	if !d.drainPendingChanges() {
		t.Error("expected the change to settle after the debounce interval")
	}
	if d.drainPendingChanges() {
		t.Error("drained change must not settle twice")
	}
}

func TestStartAndStop(t *testing.T) {
	d, _ := newTestDaemon(t, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not shut down")
	}
}
