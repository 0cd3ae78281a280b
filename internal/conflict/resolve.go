package conflict

import (
	"fmt"

	"github.com/todosync/todosync/internal/task"
)

// Auto-resolution confidence bands.
const (
	// autoKeepLocalThreshold marks near-certain duplicates, resolved by
	// keeping the local copy.
	autoKeepLocalThreshold = 0.95

	// autoRecencyThreshold marks likely duplicates, resolved by recency.
	autoRecencyThreshold = 0.8
)

// Hybrid strategy weights.
const (
	hybridRecencyWeight    = 0.4
	hybridCompletionWeight = 0.3
	hybridContentWeight    = 0.3
)

// ProcessResult partitions conflicts into those resolved automatically
// and those requiring user input.
type ProcessResult struct {
	Resolved          []TaskConflict
	Unresolved        []TaskConflict
	AutoResolvedCount int
}

// ProcessDuplicates applies the automatic resolution policy:
//
//   - confidence >= 0.95: keep the local copy.
//   - 0.8 <= confidence < 0.95: keep whichever side was created later.
//   - anything else, and every non-duplicate conflict: left unresolved
//     and surfaced to the user.
func ProcessDuplicates(conflicts []TaskConflict) ProcessResult {
	var result ProcessResult
	for _, c := range conflicts {
		if c.Type != TypeDuplicate || c.Confidence < autoRecencyThreshold {
			result.Unresolved = append(result.Unresolved, c)
			continue
		}

		if c.Confidence >= autoKeepLocalThreshold {
			c.Resolution = KeepLocal
		} else if c.Local.CreatedAt > c.Cloud.CreatedAt {
			c.Resolution = KeepLocal
		} else {
			c.Resolution = KeepCloud
		}

		result.Resolved = append(result.Resolved, c)
		result.AutoResolvedCount++
	}
	return result
}

// ResolveAdvanced stamps every conflict with a resolution chosen by the
// given strategy. The input slice is not modified; resolved copies are
// returned. An empty strategy defaults to hybrid.
func ResolveAdvanced(conflicts []TaskConflict, strategy Strategy) []TaskConflict {
	if strategy == "" {
		strategy = StrategyHybrid
	}

	out := make([]TaskConflict, len(conflicts))
	for i, c := range conflicts {
		c.Resolution = resolveOne(c, strategy)
		out[i] = c
	}
	return out
}

func resolveOne(c TaskConflict, strategy Strategy) Resolution {
	switch strategy {
	case StrategyTimestamp:
		return byTimestamp(c)

	case StrategyCompletion:
		if c.Local.Completed != c.Cloud.Completed {
			if c.Local.Completed {
				return KeepLocal
			}
			return KeepCloud
		}
		return byTimestamp(c)

	case StrategyContent:
		localLen := len(c.Local.Title) + len(c.Local.Notes)
		cloudLen := len(c.Cloud.Title) + len(c.Cloud.Notes)
		if localLen != cloudLen {
			if localLen > cloudLen {
				return KeepLocal
			}
			return KeepCloud
		}
		return byTimestamp(c)

	default: // StrategyHybrid
		if hybridScore(c.Local, c) >= hybridScore(c.Cloud, c) {
			return KeepLocal
		}
		return KeepCloud
	}
}

func byTimestamp(c TaskConflict) Resolution {
	if c.Local.CreatedAt >= c.Cloud.CreatedAt {
		return KeepLocal
	}
	return KeepCloud
}

// hybridScore weights recency, completion, and content length for one
// side of a conflict, each normalized against the other side.
func hybridScore(t task.Task, c TaskConflict) float64 {
	maxCreated := c.Local.CreatedAt
	if c.Cloud.CreatedAt > maxCreated {
		maxCreated = c.Cloud.CreatedAt
	}
	var recency float64
	if maxCreated > 0 {
		recency = float64(t.CreatedAt) / float64(maxCreated)
	}

	var completed float64
	if t.Completed {
		completed = 1
	}

	maxLen := len(c.Local.Title) + len(c.Local.Notes)
	if l := len(c.Cloud.Title) + len(c.Cloud.Notes); l > maxLen {
		maxLen = l
	}
	var content float64
	if maxLen > 0 {
		content = float64(len(t.Title)+len(t.Notes)) / float64(maxLen)
	}

	return hybridRecencyWeight*recency + hybridCompletionWeight*completed + hybridContentWeight*content
}

// SmartMerge combines a duplicate pair into a single task that keeps the
// remote identity:
//
//   - created_at: the earlier of the two (preserve earliest creation)
//   - title: the longer of the two; ties broken by recency
//   - completed: true if either side completed it
//   - notes: the longer of the two, or both joined by a blank line when
//     the lengths are equal but the contents differ
//   - due_date: the earlier of the two when both present, else whichever
//     side has one
func SmartMerge(local, cloud task.Task) task.Task {
	merged := cloud.Clone()
	merged.SyncStatus = task.StatusSynced

	if local.CreatedAt < cloud.CreatedAt {
		merged.CreatedAt = local.CreatedAt
	}

	merged.Title = pickLonger(local.Title, cloud.Title, local.CreatedAt > cloud.CreatedAt)

	switch {
	case len(local.Notes) > len(cloud.Notes):
		merged.Notes = local.Notes
	case len(cloud.Notes) > len(local.Notes):
		merged.Notes = cloud.Notes
	case local.Notes != cloud.Notes && local.Notes != "":
		merged.Notes = local.Notes + "\n\n" + cloud.Notes
	}

	merged.Completed = local.Completed || cloud.Completed

	switch {
	case local.DueDate != "" && cloud.DueDate != "":
		if local.DueDate < cloud.DueDate {
			merged.DueDate = local.DueDate
		} else {
			merged.DueDate = cloud.DueDate
		}
	case local.DueDate != "":
		merged.DueDate = local.DueDate
	}

	return merged
}

// pickLonger returns the longer of a and b; on equal length it returns a
// when localNewer is true, else b.
func pickLonger(a, b string, localNewer bool) string {
	if len(a) > len(b) {
		return a
	}
	if len(b) > len(a) {
		return b
	}
	if localNewer {
		return a
	}
	return b
}

// Describe renders a human-readable sentence for a conflict.
func Describe(c TaskConflict) string {
	switch c.Type {
	case TypeDuplicate:
		pct := int(c.Confidence*100 + 0.5)
		switch {
		case c.Confidence >= autoKeepLocalThreshold:
			return fmt.Sprintf("Exact duplicate detected (%d%% match)", pct)
		case c.Confidence >= autoRecencyThreshold:
			return fmt.Sprintf("Likely duplicate (%d%% match)", pct)
		default:
			return fmt.Sprintf("Possible duplicate (%d%% match)", pct)
		}
	case TypeModified:
		return "This task was changed both locally and in the cloud"
	case TypeDeleted:
		return "This task was deleted on one side but still exists on the other"
	default:
		return "Unknown conflict"
	}
}
