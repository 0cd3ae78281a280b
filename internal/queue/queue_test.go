package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/todosync/todosync/internal/task"
)

func testLogger() *log.Logger {
	return log.New(os.Stderr, "[test] ", 0)
}

// newTestQueue builds an in-memory queue with a fast retry clock.
func newTestQueue(t *testing.T, maxSize int) *Queue {
	t.Helper()

	q, err := New(&Config{
		MaxSize:    maxSize,
		RetryDelay: time.Millisecond,
		Logger:     testLogger(),
	})
	if err != nil {
		t.Fatalf("failed to create queue: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func createAction(title string, priority Priority, ts int64) Action {
	return Action{
		Type:      ActionCreate,
		Priority:  priority,
		Timestamp: ts,
		UserID:    "user-1",
		Create:    &CreatePayload{Task: task.Task{Title: title}},
	}
}

func TestEnqueue_ValidatesPayloadShape(t *testing.T) {
	q := newTestQueue(t, 10)

	// No payload.
	if _, err := q.Enqueue(Action{Type: ActionCreate}); err == nil {
		t.Error("expected error for action with no payload")
	}

	// Payload that does not match the type.
	_, err := q.Enqueue(Action{
		Type:   ActionCreate,
		Delete: &DeletePayload{TaskID: "x"},
	})
	if err == nil {
		t.Error("expected error for mismatched payload")
	}

	// Two payloads.
	_, err = q.Enqueue(Action{
		Type:   ActionCreate,
		Create: &CreatePayload{Task: task.Task{Title: "a"}},
		Delete: &DeletePayload{TaskID: "x"},
	})
	if err == nil {
		t.Error("expected error for action with two payloads")
	}
}

func TestEnqueue_PriorityOrdering(t *testing.T) {
	q := newTestQueue(t, 10)

	ids := make(map[string]string)
	for _, a := range []struct {
		title    string
		priority Priority
		ts       int64
	}{
		{"low-1", PriorityLow, 100},
		{"high-1", PriorityHigh, 200},
		{"normal-1", PriorityNormal, 300},
		{"high-2", PriorityHigh, 400},
		{"normal-2", PriorityNormal, 500},
	} {
		id, err := q.Enqueue(createAction(a.title, a.priority, a.ts))
		if err != nil {
			t.Fatalf("Enqueue(%s) failed: %v", a.title, err)
		}
		ids[a.title] = id
	}

	want := []string{"high-1", "high-2", "normal-1", "normal-2", "low-1"}
	actions := q.Actions()
	if len(actions) != len(want) {
		t.Fatalf("expected %d actions, got %d", len(want), len(actions))
	}
	for i, title := range want {
		if actions[i].ID != ids[title] {
			t.Errorf("position %d: expected %s, got action %s", i, title, actions[i].ID)
		}
	}
}

func TestEnqueue_NeverExceedsMaxSize(t *testing.T) {
	q := newTestQueue(t, 5)

	for i := 0; i < 20; i++ {
		priority := PriorityNormal
		if i%3 == 0 {
			priority = PriorityLow
		}
		if _, err := q.Enqueue(createAction(fmt.Sprintf("t%d", i), priority, int64(i+1))); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
		if q.Len() > 5 {
			t.Fatalf("queue grew to %d entries, cap is 5", q.Len())
		}
	}
}

func TestEnqueue_EvictsLowPriorityFirst(t *testing.T) {
	q := newTestQueue(t, 4)

	if _, err := q.Enqueue(createAction("high", PriorityHigh, 1)); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Enqueue(createAction("low-old", PriorityLow, 2)); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Enqueue(createAction("low-new", PriorityLow, 3)); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Enqueue(createAction("normal", PriorityNormal, 4)); err != nil {
		t.Fatal(err)
	}

	// Queue is at capacity; this must evict the oldest low entry, never
	// the high one.
	if _, err := q.Enqueue(createAction("incoming", PriorityNormal, 5)); err != nil {
		t.Fatal(err)
	}

	titles := make(map[string]bool)
	for _, a := range q.Actions() {
		titles[a.Create.Task.Title] = true
	}
	if !titles["high"] {
		t.Error("high-priority action was evicted while low-priority entries remained")
	}
	if titles["low-old"] {
		t.Error("expected the oldest low-priority action to be evicted")
	}
	if !titles["low-new"] || !titles["incoming"] {
		t.Errorf("unexpected queue contents: %v", titles)
	}
}

func TestProcess_DrainsInOrder(t *testing.T) {
	q := newTestQueue(t, 10)

	if _, err := q.Enqueue(createAction("second", PriorityNormal, 100)); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Enqueue(createAction("first", PriorityHigh, 200)); err != nil {
		t.Fatal(err)
	}

	var got []string
	q.SetProcessor(func(_ context.Context, a Action) error {
		got = append(got, a.Create.Task.Title)
		return nil
	})

	if err := q.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("expected [first second], got %v", got)
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue after drain, got %d entries", q.Len())
	}
	if stats := q.Stats(); stats.Completed != 2 {
		t.Errorf("expected 2 completed, got %d", stats.Completed)
	}
}

func TestProcess_RetriesThenDropsFailingAction(t *testing.T) {
	q := newTestQueue(t, 10)

	if _, err := q.Enqueue(createAction("doomed", PriorityNormal, 100)); err != nil {
		t.Fatal(err)
	}

	attempts := 0
	q.SetProcessor(func(context.Context, Action) error {
		attempts++
		return errors.New("upstream unavailable")
	})

	if err := q.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if attempts != DefaultMaxRetries {
		t.Errorf("expected exactly %d attempts, got %d", DefaultMaxRetries, attempts)
	}
	if q.Len() != 0 {
		t.Errorf("expected exhausted action to be removed, %d entries remain", q.Len())
	}
	if stats := q.Stats(); stats.Failed != 1 {
		t.Errorf("expected 1 failed, got %d", stats.Failed)
	}
}

func TestProcess_FailedActionRequeuesAtTail(t *testing.T) {
	q := newTestQueue(t, 10)

	if _, err := q.Enqueue(createAction("flaky", PriorityNormal, 100)); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Enqueue(createAction("steady", PriorityNormal, 200)); err != nil {
		t.Fatal(err)
	}

	var got []string
	q.SetProcessor(func(_ context.Context, a Action) error {
		title := a.Create.Task.Title
		got = append(got, title)
		if title == "flaky" && a.RetryCount == 0 {
			return errors.New("transient")
		}
		return nil
	})

	if err := q.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	want := []string{"flaky", "steady", "flaky"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestProcess_SingleFlight(t *testing.T) {
	q := newTestQueue(t, 10)

	if _, err := q.Enqueue(createAction("slow", PriorityNormal, 100)); err != nil {
		t.Fatal(err)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex

	q.SetProcessor(func(context.Context, Action) error {
		mu.Lock()
		calls++
		mu.Unlock()
		close(started)
		<-release
		return nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = q.Process(context.Background())
	}()

	<-started
	// A concurrent drain must bail out immediately.
	if err := q.Process(context.Background()); err != nil {
		t.Fatalf("concurrent Process errored: %v", err)
	}
	close(release)
	<-done

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("expected 1 processor call, got %d", calls)
	}
}

func TestProcess_PanickingProcessorCountsAsFailure(t *testing.T) {
	q := newTestQueue(t, 10)

	if _, err := q.Enqueue(createAction("bomb", PriorityNormal, 100)); err != nil {
		t.Fatal(err)
	}

	q.SetProcessor(func(context.Context, Action) error {
		panic("processor bug")
	})

	if err := q.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if stats := q.Stats(); stats.Failed != 1 {
		t.Errorf("expected panicking action to fail permanently, stats: %+v", stats)
	}
}

func TestProcessAction_TargetsOneAction(t *testing.T) {
	q := newTestQueue(t, 10)

	if _, err := q.Enqueue(createAction("other", PriorityNormal, 100)); err != nil {
		t.Fatal(err)
	}
	id, err := q.Enqueue(createAction("target", PriorityNormal, 200))
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	q.SetProcessor(func(_ context.Context, a Action) error {
		got = append(got, a.Create.Task.Title)
		return nil
	})

	if err := q.ProcessAction(context.Background(), id); err != nil {
		t.Fatalf("ProcessAction failed: %v", err)
	}

	if len(got) != 1 || got[0] != "target" {
		t.Errorf("expected only the target to run, got %v", got)
	}
	if q.Len() != 1 {
		t.Errorf("expected 1 remaining action, got %d", q.Len())
	}

	if err := q.ProcessAction(context.Background(), "no-such-id"); err == nil {
		t.Error("expected error for unknown action id")
	}
}

func TestStats_AndSubscribe(t *testing.T) {
	q := newTestQueue(t, 10)

	var mu sync.Mutex
	var last Stats
	notifications := 0
	unsub := q.Subscribe(func(s Stats) {
		mu.Lock()
		last = s
		notifications++
		mu.Unlock()
	})
	defer unsub()

	mu.Lock()
	if notifications != 1 {
		t.Fatalf("expected immediate stats delivery, got %d calls", notifications)
	}
	mu.Unlock()

	if _, err := q.EnqueueDelete("user-1", "t-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := q.EnqueueCreate("user-1", task.Task{Title: "Buy milk"}); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if last.Total != 2 || last.Pending != 2 {
		t.Errorf("expected 2 pending, got %+v", last)
	}
	if last.ByType[ActionDelete] != 1 || last.ByType[ActionCreate] != 1 {
		t.Errorf("unexpected by-type breakdown: %+v", last.ByType)
	}
	if last.ByPriority[PriorityHigh] != 1 {
		t.Errorf("deletes should default to high priority: %+v", last.ByPriority)
	}
}

func TestJournal_PersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")

	q, err := New(&Config{JournalPath: path, Logger: testLogger()})
	if err != nil {
		t.Fatalf("failed to create queue: %v", err)
	}
	if _, err := q.EnqueueCreate("user-1", task.Task{Title: "persisted"}); err != nil {
		t.Fatal(err)
	}
	if _, err := q.EnqueueDelete("user-1", "t-9"); err != nil {
		t.Fatal(err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	q2, err := New(&Config{JournalPath: path, Logger: testLogger()})
	if err != nil {
		t.Fatalf("failed to reopen queue: %v", err)
	}
	defer func() { _ = q2.Close() }()

	if q2.Len() != 2 {
		t.Fatalf("expected 2 reloaded actions, got %d", q2.Len())
	}
	// Priority ordering must survive the reload.
	if q2.Actions()[0].Type != ActionDelete {
		t.Errorf("expected high-priority delete first, got %s", q2.Actions()[0].Type)
	}
}

func TestJournal_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	q, err := New(&Config{JournalPath: path, Logger: testLogger()})
	if err != nil {
		t.Fatalf("corrupt journal must not prevent startup: %v", err)
	}
	defer func() { _ = q.Close() }()

	if q.Len() != 0 {
		t.Errorf("expected empty queue from corrupt journal, got %d entries", q.Len())
	}
}

func TestJournal_SecondProcessIsLockedOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")

	q, err := New(&Config{JournalPath: path, Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = q.Close() }()

	if _, err := New(&Config{JournalPath: path, Logger: testLogger()}); err == nil {
		t.Error("expected second open of the same journal to fail")
	}
}
