package conflict

import (
	"github.com/todosync/todosync/internal/task"
)

// DefaultConfidenceThreshold is the minimum confidence for a pair of
// tasks to be reported as a duplicate.
const DefaultConfidenceThreshold = 0.8

// Confidence adjustments applied on top of the raw similarity score.
const (
	dueDateMatchBonus         = 0.1
	completionMismatchPenalty = 0.2
	createdFarApartPenalty    = 0.1

	// createdFarApartMillis is the creation-time gap beyond which two
	// tasks are less likely to be the same real task.
	createdFarApartMillis = 24 * 60 * 60 * 1000
)

// DetectDuplicates finds local/cloud pairs whose normalized title and
// notes match exactly. This is the cheap variant used where confidence
// scoring is unnecessary.
//
// Each matching local task produces exactly one duplicate conflict,
// paired with the first cloud task sharing its content key.
func DetectDuplicates(local, cloud []task.Task) []TaskConflict {
	byKey := make(map[string]task.Task, len(cloud))
	for _, ct := range cloud {
		key := contentKey(ct)
		if _, ok := byKey[key]; !ok {
			byKey[key] = ct
		}
	}

	var conflicts []TaskConflict
	for _, lt := range local {
		ct, ok := byKey[contentKey(lt)]
		if !ok {
			continue
		}
		c := newConflict(TypeDuplicate, lt, ct)
		c.Similarity = 1.0
		c.Confidence = 1.0
		conflicts = append(conflicts, c)
	}
	return conflicts
}

// DetectDuplicatesWithConfidence compares every local/cloud pair and
// reports pairs that are likely the same real task despite having
// different identities.
//
// For each pair with similarity >= threshold, confidence starts at the
// similarity score and is adjusted: +0.1 when both due dates are present
// and equal, -0.2 when completion status differs, -0.1 when the creation
// timestamps are more than 24 hours apart. The pair is kept only if the
// clamped confidence is still >= threshold.
//
// The O(n*m) pairwise scan is intentional at personal task-list scale.
func DetectDuplicatesWithConfidence(local, cloud []task.Task, threshold float64) []TaskConflict {
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}

	var conflicts []TaskConflict
	for _, lt := range local {
		for _, ct := range cloud {
			sim := Similarity(lt, ct)
			if sim < threshold {
				continue
			}

			confidence := sim
			if lt.DueDate != "" && ct.DueDate != "" && lt.DueDate == ct.DueDate {
				confidence += dueDateMatchBonus
			}
			if lt.Completed != ct.Completed {
				confidence -= completionMismatchPenalty
			}
			if absDiff(lt.CreatedAt, ct.CreatedAt) > createdFarApartMillis {
				confidence -= createdFarApartPenalty
			}
			confidence = clamp01(confidence)

			if confidence < threshold {
				continue
			}

			c := newConflict(TypeDuplicate, lt, ct)
			c.Similarity = sim
			c.Confidence = confidence
			conflicts = append(conflicts, c)
		}
	}
	return conflicts
}

// DetectModified finds same-identity tasks that appear in both sets with
// diverged fields. Only remote-origin identities can appear on both
// sides; locally originated tasks have not been uploaded yet and so
// cannot have a same-identity remote counterpart.
func DetectModified(local, cloud []task.Task) []TaskConflict {
	byID := make(map[string]task.Task, len(cloud))
	for _, ct := range cloud {
		byID[ct.ID] = ct
	}

	var conflicts []TaskConflict
	for _, lt := range local {
		if lt.SyncStatus == task.StatusLocalOnly || task.HasLocalID(lt.ID) {
			continue
		}
		ct, ok := byID[lt.ID]
		if !ok {
			continue
		}
		if lt.Title != ct.Title || lt.Notes != ct.Notes ||
			lt.Completed != ct.Completed || lt.DueDate != ct.DueDate {
			conflicts = append(conflicts, newConflict(TypeModified, lt, ct))
		}
	}
	return conflicts
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
