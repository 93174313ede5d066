package models

import "time"

// WorkflowStatus represents the aggregate state of a workflow run.
type WorkflowStatus string

const (
	WorkflowStatusPending   WorkflowStatus = "pending"
	WorkflowStatusRunning   WorkflowStatus = "running"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusFailed    WorkflowStatus = "failed"
	WorkflowStatusCancelled WorkflowStatus = "cancelled"
)

// TaskResult is the outcome of one task in one run. It is written exactly
// once per run by the workflow engine and read-only afterwards.
type TaskResult struct {
	TaskID      string     `json:"task_id"`
	Status      TaskStatus `json:"status"`
	Output      any        `json:"output,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt time.Time  `json:"completed_at"`
}

// Duration returns how long the task ran, zero when timestamps are unset.
func (r TaskResult) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.CompletedAt.IsZero() {
		return 0
	}

	return r.CompletedAt.Sub(r.StartedAt)
}

// WorkflowResult aggregates the task results of a single run.
type WorkflowResult struct {
	ExecutionID string                `json:"execution_id"`
	WorkflowID  string                `json:"workflow_id"`
	Status      WorkflowStatus        `json:"status"`
	TaskResults map[string]TaskResult `json:"task_results"`
	StartedAt   time.Time             `json:"started_at"`
	CompletedAt time.Time             `json:"completed_at"`
}

// Duration returns the wall-clock duration of the run.
func (r *WorkflowResult) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.CompletedAt.IsZero() {
		return 0
	}

	return r.CompletedAt.Sub(r.StartedAt)
}

// DeriveStatus computes the aggregate status from the task results.
// Precedence: any cancelled task wins, then any failed task, else completed.
func (r *WorkflowResult) DeriveStatus() WorkflowStatus {
	status := WorkflowStatusCompleted

	for _, tr := range r.TaskResults {
		switch tr.Status {
		case TaskStatusCancelled:
			return WorkflowStatusCancelled
		case TaskStatusFailed:
			status = WorkflowStatusFailed
		}
	}

	return status
}
