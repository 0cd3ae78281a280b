// Package syncer drives the end-to-end reconciliation pass: load both
// task sets, detect conflicts, upload the conflict-free local tasks,
// auto-resolve what the policy allows, and surface the rest.
//
// At most one pass runs per Syncer at a time; a pass in flight makes
// StartSync fail with ErrSyncInProgress rather than queueing.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/todosync/todosync/internal/conflict"
	"github.com/todosync/todosync/internal/task"
)

// State is the orchestrator's lifecycle position.
type State string

const (
	StateIdle      State = "idle"
	StateSyncing   State = "syncing"
	StateSuccess   State = "success"
	StateError     State = "error"
	StateConflicts State = "conflicts"
)

var (
	// ErrSyncInProgress is returned when a pass is already running.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrNoUser is returned when a sync is started without a user id.
	// This is a programmer error, not a runtime failure.
	ErrNoUser = errors.New("no authenticated user for sync")
)

// LocalStore is the slice of the local task store the orchestrator
// consumes.
type LocalStore interface {
	Get() ([]task.Task, error)
	Save(tasks []task.Task) error
	Clear() error
}

// RemoteStore is the slice of the remote task store the orchestrator
// consumes. Implementations handle their own transient-failure retries.
type RemoteStore interface {
	List(ctx context.Context, userID string) ([]task.Task, error)
	Create(ctx context.Context, userID string, t task.Task) (string, error)
}

// Options tunes one sync pass.
type Options struct {
	// ForceUpload bypasses the nothing-to-upload short circuit.
	ForceUpload bool
}

// Result is the structured outcome of one pass. Low-level store and
// network failures are folded into Error rather than returned as Go
// errors; only misuse (ErrNoUser, ErrSyncInProgress) surfaces that way.
type Result struct {
	Success           bool                    `json:"success"`
	UploadedCount     int                     `json:"uploaded_count"`
	AttemptedCount    int                     `json:"attempted_count"`
	AutoResolvedCount int                     `json:"auto_resolved_count"`
	Cancelled         bool                    `json:"cancelled,omitempty"`
	Error             string                  `json:"error,omitempty"`
	Conflicts         []conflict.TaskConflict `json:"conflicts,omitempty"`
}

// Status is the observable orchestrator state.
type Status struct {
	State      State                   `json:"state"`
	Progress   int                     `json:"progress"` // percent of the upload batch
	LastResult *Result                 `json:"last_result,omitempty"`
	Conflicts  []conflict.TaskConflict `json:"conflicts,omitempty"`
}

// Syncer runs reconciliation passes between a local and a remote store.
type Syncer struct {
	local     LocalStore
	remote    RemoteStore
	threshold float64
	logger    *log.Logger

	mu         sync.Mutex
	state      State
	progress   int
	lastResult *Result
	unresolved []conflict.TaskConflict
	lastUserID string
	syncing    bool
	cancel     context.CancelFunc

	listeners map[int]func(Status)
	nextID    int
}

// New creates a Syncer over the given stores. A zero threshold uses the
// engine default.
func New(local LocalStore, remote RemoteStore, threshold float64, logger *log.Logger) *Syncer {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if threshold <= 0 {
		threshold = conflict.DefaultConfidenceThreshold
	}
	return &Syncer{
		local:     local,
		remote:    remote,
		threshold: threshold,
		logger:    logger,
		state:     StateIdle,
		listeners: make(map[int]func(Status)),
	}
}

// GetStatus returns the current observable state.
func (s *Syncer) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Syncer) statusLocked() Status {
	conflicts := make([]conflict.TaskConflict, len(s.unresolved))
	copy(conflicts, s.unresolved)
	return Status{
		State:      s.state,
		Progress:   s.progress,
		LastResult: s.lastResult,
		Conflicts:  conflicts,
	}
}

// Subscribe registers a status listener, invoked immediately and on
// every state or progress change. The returned function removes it.
func (s *Syncer) Subscribe(fn func(Status)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	current := s.statusLocked()
	s.mu.Unlock()

	fn(current)

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Syncer) notify() {
	s.mu.Lock()
	status := s.statusLocked()
	fns := make([]func(Status), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(status)
	}
}

func (s *Syncer) setState(state State, progress int) {
	s.mu.Lock()
	s.state = state
	s.progress = progress
	s.mu.Unlock()
	s.notify()
}

// StartSync runs one reconciliation pass for the user. Only one pass
// runs at a time. The pass can be abandoned through ctx or Cancel; an
// abandoned pass reports a distinct cancelled result and stops issuing
// remote writes once cancellation is observed.
func (s *Syncer) StartSync(ctx context.Context, userID string, opts Options) (*Result, error) {
	if userID == "" {
		return nil, ErrNoUser
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.syncing {
		s.mu.Unlock()
		return nil, ErrSyncInProgress
	}
	s.syncing = true
	s.cancel = cancel
	s.lastUserID = userID
	s.unresolved = nil
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.syncing = false
		s.cancel = nil
		s.mu.Unlock()
	}()

	s.setState(StateSyncing, 0)
	result := s.runPass(ctx, userID, opts)

	s.mu.Lock()
	s.lastResult = result
	switch {
	case len(result.Conflicts) > 0:
		s.state = StateConflicts
		s.unresolved = result.Conflicts
	case result.Success:
		s.state = StateSuccess
	default:
		s.state = StateError
	}
	s.mu.Unlock()
	s.notify()

	return result, nil
}

// runPass executes the five reconciliation steps.
func (s *Syncer) runPass(ctx context.Context, userID string, opts Options) *Result {
	localTasks, err := s.local.Get()
	if err != nil {
		return &Result{Error: fmt.Sprintf("failed to load local tasks: %v", err)}
	}

	if len(localTasks) == 0 && !opts.ForceUpload {
		s.setState(StateSyncing, 100)
		return &Result{Success: true}
	}

	if ctx.Err() != nil {
		return cancelledResult()
	}

	remoteTasks, err := s.remote.List(ctx, userID)
	if err != nil {
		if ctx.Err() != nil {
			return cancelledResult()
		}
		return &Result{Error: fmt.Sprintf("failed to load remote tasks: %v", err)}
	}

	if ctx.Err() != nil {
		return cancelledResult()
	}

	// Candidate conflicts: high-confidence duplicates plus field-level
	// divergence on shared ids.
	candidates := conflict.DetectDuplicatesWithConfidence(localTasks, remoteTasks, s.threshold)
	candidates = append(candidates, conflict.DetectModified(localTasks, remoteTasks)...)

	conflicted := make(map[string]bool)
	for _, c := range candidates {
		conflicted[c.Local.ID] = true
	}

	var toUpload, held []task.Task
	for _, t := range localTasks {
		if conflicted[t.ID] {
			held = append(held, t)
		} else {
			toUpload = append(toUpload, t)
		}
	}

	result := &Result{AttemptedCount: len(toUpload)}
	for i, t := range toUpload {
		if ctx.Err() != nil {
			result.Cancelled = true
			result.Error = "Sync cancelled"
			s.setState(StateSyncing, 100)
			return result
		}

		if _, err := s.remote.Create(ctx, userID, t); err != nil {
			s.logger.Printf("WARNING: failed to upload task %s: %v", t.ID, err)
			held = append(held, t)
		} else {
			result.UploadedCount++
		}
		s.setState(StateSyncing, (i+1)*100/len(toUpload))
	}
	s.setState(StateSyncing, 100)

	// A fully uploaded batch leaves the local store holding only the
	// conflicted tasks. Partial failure keeps everything local.
	result.Success = result.UploadedCount == result.AttemptedCount
	if result.Success && result.AttemptedCount > 0 {
		if err := s.persistRemainder(held); err != nil {
			s.logger.Printf("WARNING: failed to prune local store after upload: %v", err)
		}
	}

	auto := conflict.ProcessDuplicates(candidates)
	result.AutoResolvedCount = auto.AutoResolvedCount
	result.Conflicts = auto.Unresolved
	if len(auto.Resolved) > 0 {
		s.logger.Printf("Auto-resolved %d of %d conflicts", auto.AutoResolvedCount, len(candidates))
	}

	return result
}

func (s *Syncer) persistRemainder(held []task.Task) error {
	if len(held) == 0 {
		return s.local.Clear()
	}
	return s.local.Save(held)
}

func cancelledResult() *Result {
	return &Result{Cancelled: true, Error: "Sync cancelled"}
}

// RetrySync re-runs the last sync with the short circuit bypassed.
func (s *Syncer) RetrySync(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	userID := s.lastUserID
	s.mu.Unlock()

	if userID == "" {
		return nil, ErrNoUser
	}
	return s.StartSync(ctx, userID, Options{ForceUpload: true})
}

// Cancel abandons the pass in flight, if any.
func (s *Syncer) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// ResolveConflict stamps every unresolved conflict matching the given
// id (conflict id or either side's task id) with the chosen resolution
// and removes it from the unresolved set. Returns how many were
// resolved.
func (s *Syncer) ResolveConflict(id string, resolution conflict.Resolution) (int, error) {
	s.mu.Lock()
	resolved := 0
	remaining := s.unresolved[:0]
	for _, c := range s.unresolved {
		if c.Matches(id) {
			c.Resolution = resolution
			resolved++
			continue
		}
		remaining = append(remaining, c)
	}
	s.unresolved = remaining
	if resolved > 0 && len(s.unresolved) == 0 && s.state == StateConflicts {
		s.state = StateSuccess
	}
	s.mu.Unlock()

	if resolved == 0 {
		return 0, fmt.Errorf("no conflict matches id %s", id)
	}
	s.notify()
	return resolved, nil
}

// Verdict is a user-facing interpretation of a sync result.
type Verdict struct {
	Message     string `json:"message"`
	ShouldRetry bool   `json:"should_retry"`
}

// ValidateResult turns a structured result into a short, actionable
// message and a retry recommendation.
func ValidateResult(r *Result) Verdict {
	switch {
	case r == nil:
		return Verdict{Message: "No sync has run yet"}
	case r.Cancelled:
		return Verdict{Message: "Sync cancelled"}
	case len(r.Conflicts) > 0:
		return Verdict{Message: fmt.Sprintf("%d conflicts need your attention", len(r.Conflicts))}
	case !r.Success:
		msg := r.Error
		if msg == "" {
			msg = "Sync failed"
		}
		return Verdict{Message: msg, ShouldRetry: true}
	case r.UploadedCount == 0:
		return Verdict{Message: "No new tasks to sync"}
	default:
		return Verdict{Message: fmt.Sprintf("Synced %d tasks", r.UploadedCount)}
	}
}
