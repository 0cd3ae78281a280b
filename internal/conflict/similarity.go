package conflict

import (
	"strings"

	"github.com/todosync/todosync/internal/task"
)

// Weighting of title vs notes in the combined similarity score.
const (
	titleWeight = 0.7
	notesWeight = 0.3
)

// normalize lowercases and trims a content field for comparison.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// contentKey builds the exact-match key used by DetectDuplicates.
func contentKey(t task.Task) string {
	return normalize(t.Title) + "|" + normalize(t.Notes)
}

// fieldSimilarity scores two normalized strings on a three-tier rule:
// 1.0 when equal, 0.8 when one contains the other, otherwise the fraction
// of shared whitespace-delimited tokens over the larger token count.
func fieldSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.8
	}
	return tokenOverlap(a, b)
}

// tokenOverlap returns shared-token count divided by the larger side's
// token count.
func tokenOverlap(a, b string) float64 {
	aTokens := strings.Fields(a)
	bTokens := strings.Fields(b)
	if len(aTokens) == 0 || len(bTokens) == 0 {
		return 0
	}

	seen := make(map[string]bool, len(aTokens))
	for _, tok := range aTokens {
		seen[tok] = true
	}

	shared := 0
	counted := make(map[string]bool, len(bTokens))
	for _, tok := range bTokens {
		if seen[tok] && !counted[tok] {
			shared++
			counted[tok] = true
		}
	}

	larger := len(aTokens)
	if len(bTokens) > larger {
		larger = len(bTokens)
	}
	return float64(shared) / float64(larger)
}

// Similarity scores how closely two tasks' content matches, in [0, 1].
//
// Title and notes are normalized (trimmed, lowercased) first. An exact
// match on both yields 1.0 outright. Otherwise each field is scored on
// the three-tier rule (equal / substring / token overlap), with notes
// treated as 0 when either side has none, and the result is the weighted
// combination 0.7*title + 0.3*notes.
func Similarity(a, b task.Task) float64 {
	aTitle, bTitle := normalize(a.Title), normalize(b.Title)
	aNotes, bNotes := normalize(a.Notes), normalize(b.Notes)

	if aTitle == bTitle && aNotes == bNotes {
		return 1.0
	}

	titleSim := fieldSimilarity(aTitle, bTitle)

	var notesSim float64
	if aNotes != "" && bNotes != "" {
		notesSim = fieldSimilarity(aNotes, bNotes)
	}

	return clamp01(titleWeight*titleSim + notesWeight*notesSim)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
