// Package queue implements the durable offline action queue: mutations
// that cannot be applied immediately are held in priority order and
// replayed once a processor is registered and conditions allow.
//
// The queue journal on disk is the single shared mutable resource across
// calls; every mutating operation leaves it in a self-consistent,
// reloadable state.
package queue

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/todosync/todosync/internal/store"
	"github.com/todosync/todosync/internal/task"
)

// ActionType identifies the mutation an action carries.
type ActionType string

const (
	ActionCreate ActionType = "create"
	ActionUpdate ActionType = "update"
	ActionDelete ActionType = "delete"
	ActionSync   ActionType = "sync"
)

// Priority orders queued actions. High drains before normal, normal
// before low; within a band, insertion order is preserved.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// Payload records, one per action kind. Exactly one is set on a valid
// action, matching its Type; this replaces runtime shape-guessing with
// a tagged union.
type (
	// CreatePayload carries the full task to create remotely.
	CreatePayload struct {
		Task task.Task `json:"task"`
	}

	// UpdatePayload carries a partial update for one task.
	UpdatePayload struct {
		TaskID    string   `json:"task_id"`
		Title     *string  `json:"title,omitempty"`
		Notes     *string  `json:"notes,omitempty"`
		Completed *bool    `json:"completed,omitempty"`
		DueDate   *string  `json:"due_date,omitempty"`
		Order     *float64 `json:"order,omitempty"`
	}

	// DeletePayload names the task to delete remotely.
	DeletePayload struct {
		TaskID string `json:"task_id"`
	}

	// SyncPayload requests a full reconciliation pass.
	SyncPayload struct {
		ForceUpload bool `json:"force_upload,omitempty"`
	}
)

// Patch converts an update payload to the store's patch form.
func (p *UpdatePayload) Patch() store.Patch {
	return store.Patch{
		Title:     p.Title,
		Notes:     p.Notes,
		Completed: p.Completed,
		DueDate:   p.DueDate,
		Order:     p.Order,
	}
}

// Metadata is display-only information about an action.
type Metadata struct {
	Description string `json:"description,omitempty"`
}

// Action is one deferred mutation.
type Action struct {
	ID         string     `json:"id"`
	Type       ActionType `json:"type"`
	Timestamp  int64      `json:"timestamp"` // epoch ms, insertion order tie-breaker
	RetryCount int        `json:"retry_count"`
	MaxRetries int        `json:"max_retries"`
	Priority   Priority   `json:"priority"`
	UserID     string     `json:"user_id"`
	Metadata   Metadata   `json:"metadata,omitempty"`

	Create *CreatePayload `json:"create,omitempty"`
	Update *UpdatePayload `json:"update,omitempty"`
	Delete *DeletePayload `json:"delete,omitempty"`
	Sync   *SyncPayload   `json:"sync,omitempty"`
}

// Validate checks that the action carries exactly the payload its type
// names.
func (a *Action) Validate() error {
	set := 0
	if a.Create != nil {
		set++
	}
	if a.Update != nil {
		set++
	}
	if a.Delete != nil {
		set++
	}
	if a.Sync != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("action must carry exactly one payload, has %d", set)
	}

	ok := false
	switch a.Type {
	case ActionCreate:
		ok = a.Create != nil
	case ActionUpdate:
		ok = a.Update != nil
	case ActionDelete:
		ok = a.Delete != nil
	case ActionSync:
		ok = a.Sync != nil
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	if !ok {
		return fmt.Errorf("payload does not match action type %q", a.Type)
	}
	return nil
}

// Processor applies one action. A nil return removes the action from
// the queue; an error triggers the retry policy.
type Processor func(ctx context.Context, a Action) error

// Stats summarizes the queue for observers.
type Stats struct {
	Total      int                `json:"total"`
	Pending    int                `json:"pending"`
	Processing int                `json:"processing"`
	Completed  int                `json:"completed"`
	Failed     int                `json:"failed"`
	ByType     map[ActionType]int `json:"by_type"`
	ByPriority map[Priority]int   `json:"by_priority"`
}

// Defaults.
const (
	DefaultMaxSize    = 100
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second
)

// Config configures a Queue.
type Config struct {
	// JournalPath is where the queue is mirrored after every mutation.
	// Empty disables persistence (tests).
	JournalPath string

	// MaxSize caps queued actions (default 100).
	MaxSize int

	// MaxRetries bounds processing attempts per action (default 3).
	MaxRetries int

	// RetryDelay is the base delay; a failed action waits
	// retryCount * RetryDelay before its next attempt (default 1s).
	RetryDelay time.Duration

	// Logger for queue activity (default: stderr logger).
	Logger *log.Logger
}

// Queue is the durable, priority-ordered mutation queue.
type Queue struct {
	mu         sync.Mutex
	actions    []Action
	processing map[string]bool
	completed  int
	failed     int

	journal   *Journal
	processor Processor

	listeners map[int]func(Stats)
	nextSubID int

	draining bool

	maxSize    int
	maxRetries int
	retryDelay time.Duration
	logger     *log.Logger
}

// New creates a queue, reloading any persisted journal. A corrupt or
// unreadable journal is treated as an empty queue, never a fatal error.
func New(config *Config) (*Queue, error) {
	if config == nil {
		config = &Config{}
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[queue] ", log.LstdFlags)
	}

	q := &Queue{
		processing: make(map[string]bool),
		listeners:  make(map[int]func(Stats)),
		maxSize:    config.MaxSize,
		maxRetries: config.MaxRetries,
		retryDelay: config.RetryDelay,
		logger:     logger,
	}
	if q.maxSize <= 0 {
		q.maxSize = DefaultMaxSize
	}
	if q.maxRetries <= 0 {
		q.maxRetries = DefaultMaxRetries
	}
	if q.retryDelay <= 0 {
		q.retryDelay = DefaultRetryDelay
	}

	if config.JournalPath != "" {
		journal, err := OpenJournal(config.JournalPath)
		if err != nil {
			return nil, err
		}
		q.journal = journal

		actions, err := journal.Load()
		if err != nil {
			logger.Printf("WARNING: queue journal unreadable, starting empty: %v", err)
		} else {
			q.actions = actions
			q.sortLocked()
		}
	}

	return q, nil
}

// SetProcessor registers the function that applies actions.
func (q *Queue) SetProcessor(p Processor) {
	q.mu.Lock()
	q.processor = p
	q.mu.Unlock()
}

// Len returns the number of queued actions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions)
}

// Actions returns a snapshot of the queue in processing order.
func (q *Queue) Actions() []Action {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Action, len(q.actions))
	copy(out, q.actions)
	return out
}

// Enqueue admits an action, filling in defaults. The newest enqueue
// always succeeds: when the queue is full, oldest low-priority entries
// are dropped first, then the oldest remaining entries, until there is
// room.
func (q *Queue) Enqueue(a Action) (string, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Timestamp == 0 {
		a.Timestamp = task.Now()
	}
	if a.Priority == "" {
		a.Priority = PriorityNormal
	}
	if a.MaxRetries == 0 {
		a.MaxRetries = q.maxRetries
	}
	if err := a.Validate(); err != nil {
		return "", err
	}

	q.mu.Lock()
	q.admitLocked()
	q.actions = append(q.actions, a)
	q.sortLocked()
	q.mu.Unlock()

	q.persistAndNotify()
	return a.ID, nil
}

// admitLocked makes room for one incoming action. Low-priority entries
// are sacrificed first (oldest first); only when none remain are other
// entries truncated, oldest first, down to capacity-1.
func (q *Queue) admitLocked() {
	if len(q.actions) < q.maxSize {
		return
	}

	// Drop oldest low-priority entries.
	for len(q.actions) >= q.maxSize {
		idx := -1
		for i, a := range q.actions {
			if a.Priority == PriorityLow && (idx == -1 || a.Timestamp < q.actions[idx].Timestamp) {
				idx = i
			}
		}
		if idx == -1 {
			break
		}
		q.logger.Printf("Queue full: dropping low-priority action %s", q.actions[idx].ID)
		q.actions = append(q.actions[:idx], q.actions[idx+1:]...)
	}

	// Still over capacity: truncate oldest remaining entries.
	for len(q.actions) >= q.maxSize {
		idx := 0
		for i, a := range q.actions {
			if a.Timestamp < q.actions[idx].Timestamp {
				idx = i
			}
		}
		q.logger.Printf("Queue full: dropping oldest action %s", q.actions[idx].ID)
		q.actions = append(q.actions[:idx], q.actions[idx+1:]...)
	}
}

// sortLocked keeps the queue ordered by priority descending, then
// insertion time ascending.
func (q *Queue) sortLocked() {
	sort.SliceStable(q.actions, func(i, j int) bool {
		a, b := q.actions[i], q.actions[j]
		if a.Priority.rank() != b.Priority.rank() {
			return a.Priority.rank() < b.Priority.rank()
		}
		return a.Timestamp < b.Timestamp
	})
}

// Remove deletes an action by id. Returns false when not found.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	found := q.removeLocked(id)
	q.mu.Unlock()

	if found {
		q.persistAndNotify()
	}
	return found
}

func (q *Queue) removeLocked(id string) bool {
	for i, a := range q.actions {
		if a.ID == id {
			q.actions = append(q.actions[:i], q.actions[i+1:]...)
			delete(q.processing, id)
			return true
		}
	}
	return false
}

// Clear empties the queue.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.actions = nil
	q.processing = make(map[string]bool)
	q.mu.Unlock()

	q.persistAndNotify()
}

// Process drains the queue serially from the head. Only one drain runs
// at a time; concurrent calls return immediately. Each action is
// attempted at most MaxRetries times in total, with a failed attempt
// re-queued at the tail of its priority band after a delay of
// retryCount * RetryDelay. Exhausted actions are dropped and logged as
// permanently failed.
func (q *Queue) Process(ctx context.Context) error {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return nil
	}
	if q.processor == nil {
		q.mu.Unlock()
		return fmt.Errorf("no processor registered")
	}
	q.draining = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		q.mu.Lock()
		if len(q.actions) == 0 {
			q.mu.Unlock()
			return nil
		}
		a := q.actions[0]
		q.processing[a.ID] = true
		processor := q.processor
		q.mu.Unlock()

		q.persistAndNotify()

		if err := q.runOne(ctx, processor, a); err != nil {
			return err
		}
	}
}

// runOne applies a single attempt of an action and handles the outcome.
func (q *Queue) runOne(ctx context.Context, processor Processor, a Action) error {
	err := q.invoke(ctx, processor, a)

	if err == nil {
		q.mu.Lock()
		q.removeLocked(a.ID)
		q.completed++
		q.mu.Unlock()
		q.persistAndNotify()
		return nil
	}

	a.RetryCount++
	q.logger.Printf("Action %s (%s) failed (attempt %d/%d): %v",
		a.ID, a.Type, a.RetryCount, a.MaxRetries, err)

	if a.RetryCount >= a.MaxRetries {
		q.mu.Lock()
		q.removeLocked(a.ID)
		q.failed++
		q.mu.Unlock()
		q.logger.Printf("Action %s permanently failed after %d attempts", a.ID, a.RetryCount)
		q.persistAndNotify()
		return nil
	}

	// Back off, then move the action to the tail of its priority band.
	wait := time.Duration(a.RetryCount) * q.retryDelay
	select {
	case <-ctx.Done():
		// Leave the action queued; it will be retried next drain.
		q.mu.Lock()
		delete(q.processing, a.ID)
		q.requeueLocked(a)
		q.mu.Unlock()
		q.persistAndNotify()
		return ctx.Err()
	case <-time.After(wait):
	}

	q.mu.Lock()
	delete(q.processing, a.ID)
	q.requeueLocked(a)
	q.mu.Unlock()
	q.persistAndNotify()
	return nil
}

// requeueLocked replaces the stored copy of the action with its updated
// retry count and a fresh timestamp so it sorts to the tail of its band.
func (q *Queue) requeueLocked(a Action) {
	q.removeLocked(a.ID)
	a.Timestamp = task.Now()
	q.actions = append(q.actions, a)
	q.sortLocked()
}

// invoke runs the processor, converting a panic into an error so one
// bad action cannot kill the drain loop.
func (q *Queue) invoke(ctx context.Context, processor Processor, a Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panicked: %v", r)
		}
	}()
	return processor(ctx, a)
}

// ProcessAction applies the retry/drop semantics to one specific action
// out of order, for targeted retries. The requeue on failure is
// immediate rather than delayed.
func (q *Queue) ProcessAction(ctx context.Context, id string) error {
	q.mu.Lock()
	processor := q.processor
	var found *Action
	for i := range q.actions {
		if q.actions[i].ID == id {
			a := q.actions[i]
			found = &a
			break
		}
	}
	if found != nil {
		q.processing[id] = true
	}
	q.mu.Unlock()

	if processor == nil {
		return fmt.Errorf("no processor registered")
	}
	if found == nil {
		return fmt.Errorf("action %s not found", id)
	}

	q.persistAndNotify()

	a := *found
	err := q.invoke(ctx, processor, a)

	q.mu.Lock()
	if err == nil {
		q.removeLocked(a.ID)
		q.completed++
	} else {
		a.RetryCount++
		if a.RetryCount >= a.MaxRetries {
			q.removeLocked(a.ID)
			q.failed++
			q.logger.Printf("Action %s permanently failed after %d attempts", a.ID, a.RetryCount)
		} else {
			delete(q.processing, a.ID)
			q.requeueLocked(a)
		}
	}
	q.mu.Unlock()

	q.persistAndNotify()
	return nil
}

// Stats computes the current queue statistics.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.statsLocked()
}

func (q *Queue) statsLocked() Stats {
	s := Stats{
		Total:      len(q.actions),
		Processing: len(q.processing),
		Completed:  q.completed,
		Failed:     q.failed,
		ByType:     make(map[ActionType]int),
		ByPriority: make(map[Priority]int),
	}
	s.Pending = s.Total - s.Processing
	for _, a := range q.actions {
		s.ByType[a.Type]++
		s.ByPriority[a.Priority]++
	}
	return s
}

// Subscribe registers a stats listener, invoked immediately and after
// every queue mutation. The returned function removes the listener.
func (q *Queue) Subscribe(fn func(Stats)) func() {
	q.mu.Lock()
	id := q.nextSubID
	q.nextSubID++
	q.listeners[id] = fn
	current := q.statsLocked()
	q.mu.Unlock()

	fn(current)

	return func() {
		q.mu.Lock()
		delete(q.listeners, id)
		q.mu.Unlock()
	}
}

// persistAndNotify mirrors the queue to the journal and pushes stats to
// listeners. Journal failures are logged, not fatal: the in-memory
// queue remains authoritative for this process.
func (q *Queue) persistAndNotify() {
	q.mu.Lock()
	snapshot := make([]Action, len(q.actions))
	copy(snapshot, q.actions)
	stats := q.statsLocked()
	fns := make([]func(Stats), 0, len(q.listeners))
	for _, fn := range q.listeners {
		fns = append(fns, fn)
	}
	journal := q.journal
	q.mu.Unlock()

	if journal != nil {
		if err := journal.Save(snapshot); err != nil {
			q.logger.Printf("WARNING: failed to persist queue: %v", err)
		}
	}
	for _, fn := range fns {
		fn(stats)
	}
}

// Close releases the journal lock.
func (q *Queue) Close() error {
	q.mu.Lock()
	journal := q.journal
	q.journal = nil
	q.mu.Unlock()

	if journal != nil {
		return journal.Close()
	}
	return nil
}
