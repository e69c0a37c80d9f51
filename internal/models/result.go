package models

import "time"

// TaskStatus is the outcome of a single task within a build run.
type TaskStatus string

const (
	TaskSucceeded TaskStatus = "succeeded"
	// TaskDegraded means the task ran to completion but a transform error was
	// contained inside it, so part of its output is missing.
	TaskDegraded TaskStatus = "degraded"
	TaskFailed   TaskStatus = "failed"
	TaskSkipped  TaskStatus = "skipped"
)

// TaskResult records what a task did during one run.
type TaskResult struct {
	Task    string        `json:"task"`
	Status  TaskStatus    `json:"status"`
	Written []string      `json:"written,omitempty"`
	Errors  []*BuildError `json:"errors,omitempty"`
	// SkippedBy names the failed prerequisite of a skipped task.
	SkippedBy   string    `json:"skipped_by,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	DurationSec float64   `json:"duration_sec"`
}

// Completed reports whether dependents may run after this task.
func (r *TaskResult) Completed() bool {
	return r.Status == TaskSucceeded || r.Status == TaskDegraded
}

// BuildResult aggregates every task result of a build run.
type BuildResult struct {
	Tasks            map[string]*TaskResult `json:"tasks"`
	StartedAt        time.Time              `json:"started_at"`
	EndedAt          time.Time              `json:"ended_at"`
	TotalDurationSec float64                `json:"total_duration_sec"`
}

// Failed reports whether any task did not fully succeed.
func (b *BuildResult) Failed() bool {
	for _, r := range b.Tasks {
		if r.Status != TaskSucceeded {
			return true
		}
	}
	return false
}

// Count returns how many tasks ended with the given status.
func (b *BuildResult) Count(status TaskStatus) int {
	n := 0
	for _, r := range b.Tasks {
		if r.Status == status {
			n++
		}
	}
	return n
}

// TaskOutput is what a task reports back to the runner.
type TaskOutput struct {
	Written []string
	// Problems are transform errors contained inside the task.
	Problems []*BuildError
}
