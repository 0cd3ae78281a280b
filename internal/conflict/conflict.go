// Package conflict implements detection and resolution of disagreements
// between a locally stored task list and a remote task collection.
//
// All functions in this package are pure: they read and copy tasks but
// never mutate either input set, except to stamp a Resolution onto a
// conflict record once one is chosen.
package conflict

import (
	"github.com/google/uuid"

	"github.com/todosync/todosync/internal/task"
)

// Type classifies a detected conflict.
type Type string

const (
	// TypeDuplicate means two different-identity tasks appear to be the
	// same real task.
	TypeDuplicate Type = "duplicate"

	// TypeModified means the same-identity task has diverged fields on
	// the two sides.
	TypeModified Type = "modified"

	// TypeDeleted means a task exists on one side and was removed on the
	// other.
	TypeDeleted Type = "deleted"
)

// Resolution is the chosen outcome for a conflict.
type Resolution string

const (
	KeepLocal Resolution = "keep_local"
	KeepCloud Resolution = "keep_cloud"
	Merge     Resolution = "merge"
)

// Strategy selects the policy ResolveAdvanced applies.
type Strategy string

const (
	// StrategyTimestamp keeps whichever side was created more recently.
	StrategyTimestamp Strategy = "timestamp"

	// StrategyCompletion prefers a completed task over an incomplete one,
	// falling back to timestamp on ties.
	StrategyCompletion Strategy = "completion"

	// StrategyContent keeps the side with the longer combined title and
	// notes text.
	StrategyContent Strategy = "content"

	// StrategyHybrid scores each side on recency, completion, and content
	// length and keeps the higher score. This is the default.
	StrategyHybrid Strategy = "hybrid"
)

// TaskConflict is a detected disagreement between one local task and one
// remote ("cloud") task.
type TaskConflict struct {
	ID         string     `json:"id"`
	Local      task.Task  `json:"local_task"`
	Cloud      task.Task  `json:"cloud_task"`
	Type       Type       `json:"type"`
	Confidence float64    `json:"confidence,omitempty"`
	Similarity float64    `json:"similarity,omitempty"`
	Resolution Resolution `json:"resolution,omitempty"`
}

// newConflict builds a conflict record with a fresh id.
func newConflict(typ Type, local, cloud task.Task) TaskConflict {
	return TaskConflict{
		ID:    uuid.New().String(),
		Local: local,
		Cloud: cloud,
		Type:  typ,
	}
}

// Matches reports whether the conflict involves the given task id on
// either side, or is the conflict with that id itself.
func (c *TaskConflict) Matches(id string) bool {
	return c.ID == id || c.Local.ID == id || c.Cloud.ID == id
}

// Stats summarizes the relationship between a local and a remote task set.
type Stats struct {
	LocalCount     int `json:"local_count"`
	CloudCount     int `json:"cloud_count"`
	DuplicateCount int `json:"duplicate_count"`
	ModifiedCount  int `json:"modified_count"`
	TotalConflicts int `json:"total_conflicts"`
}

// GetStats computes summary statistics without confidence scoring.
func GetStats(local, cloud []task.Task) Stats {
	dups := DetectDuplicates(local, cloud)
	mods := DetectModified(local, cloud)
	return Stats{
		LocalCount:     len(local),
		CloudCount:     len(cloud),
		DuplicateCount: len(dups),
		ModifiedCount:  len(mods),
		TotalConflicts: len(dups) + len(mods),
	}
}
