// Package models defines the core domain models for workflow automation:
// tasks, workflows, execution results, and schedules.
package models

import (
	"errors"
	"fmt"
	"sort"
)

// ErrCycleDetected is returned when the dependency graph is not acyclic.
var ErrCycleDetected = errors.New("workflow contains circular dependencies")

const defaultMaxParallel = 5

// Workflow is a named DAG of tasks. Tasks may only be added or removed
// before a run starts; the engine treats the workflow as an immutable view
// while executing it.
type Workflow struct {
	ID          string         `json:"id"          validate:"required"`
	Name        string         `json:"name"        validate:"required,min=3"`
	Description string         `json:"description,omitempty"`
	MaxParallel int            `json:"max_parallel" validate:"min=1"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	// Task arena in insertion order plus an id index. Dependency edges are
	// resolved to integer indices during traversal so cycle detection and
	// level computation never chase pointers.
	tasks []*Task
	index map[string]int
}

// NewWorkflow creates an empty workflow with the default parallelism bound.
func NewWorkflow(id, name string) *Workflow {
	return &Workflow{
		ID:          id,
		Name:        name,
		MaxParallel: defaultMaxParallel,
		index:       make(map[string]int),
	}
}

// AddTask registers a task, replacing any task with the same id.
func (w *Workflow) AddTask(task *Task) {
	if w.index == nil {
		w.index = make(map[string]int)
	}

	if i, ok := w.index[task.ID]; ok {
		w.tasks[i] = task

		return
	}

	w.index[task.ID] = len(w.tasks)
	w.tasks = append(w.tasks, task)
}

// RemoveTask deletes a task and strips it from every other task's
// dependency list.
func (w *Workflow) RemoveTask(id string) {
	i, ok := w.index[id]
	if !ok {
		return
	}

	w.tasks = append(w.tasks[:i], w.tasks[i+1:]...)
	delete(w.index, id)

	for j := i; j < len(w.tasks); j++ {
		w.index[w.tasks[j].ID] = j
	}

	for _, task := range w.tasks {
		deps := task.Dependencies[:0]

		for _, dep := range task.Dependencies {
			if dep != id {
				deps = append(deps, dep)
			}
		}

		task.Dependencies = deps
	}
}

// Task returns the task with the given id, if present.
func (w *Workflow) Task(id string) (*Task, bool) {
	i, ok := w.index[id]
	if !ok {
		return nil, false
	}

	return w.tasks[i], true
}

// Tasks returns the tasks in insertion order.
func (w *Workflow) Tasks() []*Task {
	out := make([]*Task, len(w.tasks))
	copy(out, w.tasks)

	return out
}

// TaskCount returns the number of tasks in the workflow.
func (w *Workflow) TaskCount() int {
	return len(w.tasks)
}

// Validate checks the workflow structure without side effects. It reports
// every dependency id that does not resolve to a task in this workflow, and
// a single error if the dependency graph contains a cycle.
func (w *Workflow) Validate() []error {
	var errs []error

	for _, task := range w.tasks {
		for _, dep := range task.Dependencies {
			if _, ok := w.index[dep]; !ok {
				errs = append(errs, fmt.Errorf("task %q has missing dependency %q", task.ID, dep))
			}
		}
	}

	if len(errs) > 0 {
		// Cycle detection assumes every edge resolves.
		return errs
	}

	if _, err := w.levels(); err != nil {
		errs = append(errs, err)
	}

	return errs
}

// ExecutionOrder partitions the tasks into dependency levels via Kahn's
// algorithm: level 0 holds every task with no dependencies, level k holds
// tasks whose dependencies are all satisfied by levels 0..k-1. Ties within
// a level follow insertion order so dispatch is reproducible.
func (w *Workflow) ExecutionOrder() ([][]string, error) {
	if len(w.tasks) == 0 {
		return nil, nil
	}

	for _, task := range w.tasks {
		for _, dep := range task.Dependencies {
			if _, ok := w.index[dep]; !ok {
				return nil, fmt.Errorf("task %q has missing dependency %q", task.ID, dep)
			}
		}
	}

	return w.levels()
}

// levels runs Kahn's algorithm grouped by frontier over the task arena.
func (w *Workflow) levels() ([][]string, error) {
	n := len(w.tasks)
	indegree := make([]int, n)
	dependents := make([][]int, n)

	for i, task := range w.tasks {
		indegree[i] = len(task.Dependencies)

		for _, dep := range task.Dependencies {
			j := w.index[dep]
			dependents[j] = append(dependents[j], i)
		}
	}

	frontier := make([]int, 0, n)

	for i := range w.tasks {
		if indegree[i] == 0 {
			frontier = append(frontier, i)
		}
	}

	var order [][]string

	processed := 0

	for len(frontier) > 0 {
		level := make([]string, 0, len(frontier))
		next := make([]int, 0)

		for _, i := range frontier {
			level = append(level, w.tasks[i].ID)
			processed++

			for _, j := range dependents[i] {
				indegree[j]--
				if indegree[j] == 0 {
					next = append(next, j)
				}
			}
		}

		order = append(order, level)
		sort.Ints(next)
		frontier = next
	}

	if processed != n {
		return nil, ErrCycleDetected
	}

	return order, nil
}
