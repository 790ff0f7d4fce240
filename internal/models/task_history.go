package models

import (
	"sort"
	"time"
)

// ExceptionEntry records one failed or skipped question for post-mortem
// reporting. StartedAt/CompletedAt bracket the question's attempts.
type ExceptionEntry struct {
	InterviewIndex int       `json:"interview_index"`
	QuestionName   string    `json:"question_name"`
	Kind           string    `json:"kind"` // "validation", "transient", "permanent", "rule", "cancelled", "skipped"
	Message        string    `json:"message"`
	Attempts       int       `json:"attempts,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
}

// TaskHistory is the append-only record of per-interview exceptions gathered
// by the runner. It is written only by the runner's collector goroutine.
type TaskHistory struct {
	Entries []ExceptionEntry `json:"entries"`
}

// Append adds entries for one interview.
func (h *TaskHistory) Append(entries ...ExceptionEntry) {
	h.Entries = append(h.Entries, entries...)
}

// HasExceptions reports whether any interview recorded a failure.
func (h *TaskHistory) HasExceptions() bool {
	return len(h.Entries) > 0
}

// Indices returns the sorted, de-duplicated list of failing interview
// indices.
func (h *TaskHistory) Indices() []int {
	seen := make(map[int]bool, len(h.Entries))
	for _, e := range h.Entries {
		seen[e.InterviewIndex] = true
	}
	indices := make([]int, 0, len(seen))
	for idx := range seen {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices
}

// Len returns the number of recorded exceptions.
func (h *TaskHistory) Len() int {
	return len(h.Entries)
}
