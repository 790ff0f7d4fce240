package models

// QuestionStatus is the lifecycle state of one question within an
// interview.
type QuestionStatus string

const (
	// StatusPending means the question has not been reached.
	StatusPending QuestionStatus = "pending"

	// StatusRunning means the question is being asked right now.
	StatusRunning QuestionStatus = "running"

	// StatusSucceeded means a validated answer was recorded.
	StatusSucceeded QuestionStatus = "succeeded"

	// StatusFailed means the question exhausted its retries.
	StatusFailed QuestionStatus = "failed"

	// StatusSkipped means the question was never asked: routed around by
	// rules or abandoned after a dependency failed.
	StatusSkipped QuestionStatus = "skipped"
)

// TaskStatus tracks per-question state, keyed by question name.
type TaskStatus map[string]QuestionStatus

// NewTaskStatus starts every named question at pending.
func NewTaskStatus(questionNames []string) TaskStatus {
	status := make(TaskStatus, len(questionNames))
	for _, name := range questionNames {
		status[name] = StatusPending
	}
	return status
}

// Counts tallies questions per status.
func (s TaskStatus) Counts() map[QuestionStatus]int {
	counts := make(map[QuestionStatus]int)
	for _, status := range s {
		counts[status]++
	}
	return counts
}
