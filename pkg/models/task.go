package models

import (
	"context"
	"time"
)

// TaskStatus represents the lifecycle state of a single task within a run.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusSkipped   TaskStatus = "skipped"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// TaskAction is the unit of work a task executes. It receives the run
// context map and returns an output value or an error. Actions must be safe
// to invoke more than once when the task has retries configured.
type TaskAction func(ctx context.Context, runContext map[string]any) (any, error)

// Task is a single node in a workflow DAG. Tasks are owned by their workflow
// and must not be mutated once a run has started.
type Task struct {
	ID           string         `json:"id"           validate:"required"`
	Name         string         `json:"name"         validate:"required"`
	Action       TaskAction     `json:"-"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Timeout      time.Duration  `json:"timeout,omitempty"`
	RetryCount   int            `json:"retry_count"  validate:"min=0"`
	RetryDelay   time.Duration  `json:"retry_delay"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// DependsOn reports whether the task lists the given id as a dependency.
func (t *Task) DependsOn(id string) bool {
	for _, dep := range t.Dependencies {
		if dep == id {
			return true
		}
	}

	return false
}
