// Package workflow implements task execution and the level-ordered,
// bounded-parallel workflow engine.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/forgeops/automaton/pkg/models"
)

// Executor runs a single task. Implementations must capture failures in the
// returned TaskResult instead of propagating them.
type Executor interface {
	ExecuteTask(ctx context.Context, task *models.Task, runContext map[string]any) models.TaskResult
}

// DefaultExecutor executes task actions with per-attempt timeout and retry
// with a fixed delay between attempts. It never mutates workflow state.
type DefaultExecutor struct {
	logger *slog.Logger
}

// NewDefaultExecutor creates an executor logging through the given logger.
func NewDefaultExecutor(logger *slog.Logger) *DefaultExecutor {
	return &DefaultExecutor{
		logger: logger.With("module", "task_executor"),
	}
}

type attemptOutcome struct {
	output any
	err    error
}

// ExecuteTask runs the task action up to RetryCount+1 times. A success on
// any attempt yields a completed result with the action output; exhausting
// all attempts yields a failed result carrying the last error.
func (e *DefaultExecutor) ExecuteTask(ctx context.Context, task *models.Task, runContext map[string]any) models.TaskResult {
	startedAt := time.Now().UTC()

	var lastErr string

	attempts := task.RetryCount + 1

	for attempt := range attempts {
		output, err := e.runAttempt(ctx, task, runContext)
		if err == nil {
			return models.TaskResult{
				TaskID:      task.ID,
				Status:      models.TaskStatusCompleted,
				Output:      output,
				StartedAt:   startedAt,
				CompletedAt: time.Now().UTC(),
			}
		}

		lastErr = err.Error()
		e.logger.Warn("Task attempt failed",
			"task_id", task.ID,
			"attempt", attempt+1,
			"attempts", attempts,
			"error", err)

		if ctx.Err() != nil {
			// Run is being torn down, retrying would only observe the same
			// cancelled context.
			break
		}

		if attempt < task.RetryCount {
			select {
			case <-time.After(task.RetryDelay):
			case <-ctx.Done():
			}
		}
	}

	return models.TaskResult{
		TaskID:      task.ID,
		Status:      models.TaskStatusFailed,
		Error:       lastErr,
		StartedAt:   startedAt,
		CompletedAt: time.Now().UTC(),
	}
}

// runAttempt invokes the action once, bounded by the task timeout when set.
// The action runs on its own goroutine so a non-cooperative action cannot
// stall the attempt past its deadline.
func (e *DefaultExecutor) runAttempt(ctx context.Context, task *models.Task, runContext map[string]any) (any, error) {
	attemptCtx := ctx
	cancel := context.CancelFunc(func() {})

	if task.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, task.Timeout)
	}
	defer cancel()

	outcomeCh := make(chan attemptOutcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				outcomeCh <- attemptOutcome{err: fmt.Errorf("task %s panicked: %v", task.ID, r)}
			}
		}()

		output, err := task.Action(attemptCtx, runContext)
		outcomeCh <- attemptOutcome{output: output, err: err}
	}()

	select {
	case outcome := <-outcomeCh:
		if outcome.err != nil {
			return nil, fmt.Errorf("task %s failed: %w", task.ID, outcome.err)
		}

		return outcome.output, nil
	case <-attemptCtx.Done():
		if task.Timeout > 0 && ctx.Err() == nil {
			return nil, fmt.Errorf("task %s timed out after %s", task.ID, task.Timeout)
		}

		return nil, fmt.Errorf("task %s aborted: %w", task.ID, attemptCtx.Err())
	}
}
