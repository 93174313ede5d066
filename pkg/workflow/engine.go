package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/forgeops/automaton/pkg/models"
	"github.com/forgeops/automaton/pkg/otelhelper"
)

const skippedDependencyReason = "skipped due to failed dependencies"

var (
	// ErrWorkflowInvalid wraps validation failures reported before a run starts.
	ErrWorkflowInvalid = errors.New("workflow validation failed")

	// ErrWorkflowRunning rejects a run while one with the same workflow id
	// is still live.
	ErrWorkflowRunning = errors.New("workflow is already running")
)

// cancelToken is the per-run cooperative cancellation flag. It is checked
// between levels, never mid-task.
type cancelToken struct {
	cancelled atomic.Bool
}

type asyncRun struct {
	done   chan struct{}
	result *models.WorkflowResult
}

// Engine drives leveled, bounded-parallel workflow execution. One engine can
// run many workflows, but a given workflow id has at most one live run.
type Engine struct {
	executor Executor
	logger   *slog.Logger
	tracer   trace.Tracer

	mu     sync.Mutex
	tokens map[string]*cancelToken
	runs   map[string]*asyncRun
}

// NewEngine creates an engine using the given executor, or the default
// executor when nil.
func NewEngine(executor Executor, logger *slog.Logger) *Engine {
	if executor == nil {
		executor = NewDefaultExecutor(logger)
	}

	return &Engine{
		executor: executor,
		logger:   logger.With("module", "workflow_engine"),
		tracer:   otel.Tracer("automaton/workflow"),
		tokens:   make(map[string]*cancelToken),
		runs:     make(map[string]*asyncRun),
	}
}

// ExecuteWorkflow validates and runs the workflow level by level. Task
// failures are captured in the result, never returned as an error; only
// structural problems (invalid DAG, duplicate live run) surface as errors.
func (e *Engine) ExecuteWorkflow(ctx context.Context, wf *models.Workflow, runContext map[string]any) (*models.WorkflowResult, error) {
	if validationErrs := wf.Validate(); len(validationErrs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrWorkflowInvalid, errors.Join(validationErrs...))
	}

	order, err := wf.ExecutionOrder()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWorkflowInvalid, err)
	}

	token, err := e.acquireToken(wf.ID)
	if err != nil {
		return nil, err
	}
	defer e.releaseToken(wf.ID)

	executionID := "run-" + uuid.New().String()[:8]
	logger := e.logger.With("workflow_id", wf.ID, "execution_id", executionID)

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.execute",
		attribute.String(otelhelper.WorkflowIDKey, wf.ID),
		attribute.String(otelhelper.ExecutionIDKey, executionID),
	)
	defer span.End()

	logger.Info("Starting workflow execution", "tasks", wf.TaskCount(), "levels", len(order))

	result := &models.WorkflowResult{
		ExecutionID: executionID,
		WorkflowID:  wf.ID,
		Status:      models.WorkflowStatusRunning,
		TaskResults: make(map[string]models.TaskResult),
		StartedAt:   time.Now().UTC(),
	}

	for levelIdx, level := range order {
		if token.cancelled.Load() {
			logger.Info("Workflow cancelled, marking remaining tasks", "level", levelIdx)
			e.markRemaining(result, order[levelIdx:], models.TaskStatusCancelled, "cancelled before start")

			break
		}

		e.runLevel(ctx, wf, level, runContext, result)

		if levelFailed(result, level) {
			logger.Warn("Level contains failed tasks, skipping downstream levels", "level", levelIdx)
			e.markRemaining(result, order[levelIdx+1:], models.TaskStatusSkipped, skippedDependencyReason)

			break
		}
	}

	result.CompletedAt = time.Now().UTC()
	result.Status = result.DeriveStatus()

	if result.Status == models.WorkflowStatusFailed {
		otelhelper.SetError(span, fmt.Errorf("workflow %s failed", wf.ID),
			attribute.String(otelhelper.WorkflowIDKey, wf.ID),
			attribute.String(otelhelper.ExecutionIDKey, result.ExecutionID),
		)
	}

	logger.Info("Workflow execution finished",
		"status", result.Status,
		"duration", result.Duration())

	return result, nil
}

// runLevel dispatches one level: tasks with failed or skipped dependencies
// are recorded as skipped without touching the executor, the rest run
// concurrently under the MaxParallel semaphore. Returns once every task in
// the level has a terminal status.
func (e *Engine) runLevel(ctx context.Context, wf *models.Workflow, level []string, runContext map[string]any, result *models.WorkflowResult) {
	maxParallel := wf.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 1
	}

	semaphore := make(chan struct{}, maxParallel)

	// Resolve skips before dispatching anything so the result map is never
	// touched outside the mutex while level goroutines run.
	runnable := make([]*models.Task, 0, len(level))

	for _, taskID := range level {
		task, ok := wf.Task(taskID)
		if !ok {
			continue
		}

		if depFailed(result, task) {
			now := time.Now().UTC()
			result.TaskResults[taskID] = models.TaskResult{
				TaskID:      taskID,
				Status:      models.TaskStatusSkipped,
				Error:       skippedDependencyReason,
				StartedAt:   now,
				CompletedAt: now,
			}

			continue
		}

		runnable = append(runnable, task)
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, task := range runnable {
		wg.Add(1)

		go func(task *models.Task) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			taskCtx, taskSpan := otelhelper.StartSpan(ctx, e.tracer, "workflow.task",
				attribute.String(otelhelper.TaskIDKey, task.ID),
				attribute.String(otelhelper.WorkflowIDKey, wf.ID),
			)
			defer taskSpan.End()

			taskResult := e.executor.ExecuteTask(taskCtx, task, runContext)

			if taskResult.Status == models.TaskStatusFailed {
				otelhelper.SetError(taskSpan, errors.New(taskResult.Error),
					attribute.String(otelhelper.TaskIDKey, task.ID),
				)
			}

			mu.Lock()
			result.TaskResults[task.ID] = taskResult
			mu.Unlock()
		}(task)
	}

	wg.Wait()
}

// markRemaining records a terminal status for every task in the given levels
// that has not produced a result yet.
func (e *Engine) markRemaining(result *models.WorkflowResult, levels [][]string, status models.TaskStatus, reason string) {
	now := time.Now().UTC()

	for _, level := range levels {
		for _, taskID := range level {
			if _, seen := result.TaskResults[taskID]; seen {
				continue
			}

			result.TaskResults[taskID] = models.TaskResult{
				TaskID:      taskID,
				Status:      status,
				Error:       reason,
				StartedAt:   now,
				CompletedAt: now,
			}
		}
	}
}

// CancelWorkflow requests cooperative cancellation of a running workflow.
// In-flight tasks finish; levels that have not started are cancelled.
// Returns false when no run with that workflow id is live.
func (e *Engine) CancelWorkflow(workflowID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	token, ok := e.tokens[workflowID]
	if !ok {
		return false
	}

	token.cancelled.Store(true)
	e.logger.Info("Cancellation requested", "workflow_id", workflowID)

	return true
}

// IsWorkflowRunning reports whether a run with this workflow id is live.
func (e *Engine) IsWorkflowRunning(workflowID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, ok := e.tokens[workflowID]

	return ok
}

// SubmitWorkflow starts the workflow on a background goroutine and returns
// immediately with the workflow id. The result becomes available through
// WorkflowResult once the run finishes. Returns ErrWorkflowRunning while a
// previous submission for the same workflow id is still in flight.
func (e *Engine) SubmitWorkflow(ctx context.Context, wf *models.Workflow, runContext map[string]any) (string, error) {
	run := &asyncRun{done: make(chan struct{})}

	e.mu.Lock()

	if prev, ok := e.runs[wf.ID]; ok {
		select {
		case <-prev.done:
		default:
			e.mu.Unlock()

			return "", fmt.Errorf("%w: %s", ErrWorkflowRunning, wf.ID)
		}
	}

	e.runs[wf.ID] = run
	e.mu.Unlock()

	go func() {
		defer close(run.done)

		result, err := e.ExecuteWorkflow(ctx, wf, runContext)
		if err != nil {
			e.logger.Error("Async workflow execution failed", "workflow_id", wf.ID, "error", err)

			return
		}

		run.result = result
	}()

	return wf.ID, nil
}

// WorkflowResult returns the result of a submitted workflow, or nil while
// the run is still in flight or when it aborted on a structural error.
func (e *Engine) WorkflowResult(workflowID string) *models.WorkflowResult {
	e.mu.Lock()
	run, ok := e.runs[workflowID]
	e.mu.Unlock()

	if !ok {
		return nil
	}

	select {
	case <-run.done:
		return run.result
	default:
		return nil
	}
}

func (e *Engine) acquireToken(workflowID string) (*cancelToken, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.tokens[workflowID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowRunning, workflowID)
	}

	token := &cancelToken{}
	e.tokens[workflowID] = token

	return token, nil
}

func (e *Engine) releaseToken(workflowID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.tokens, workflowID)
}

func depFailed(result *models.WorkflowResult, task *models.Task) bool {
	for _, dep := range task.Dependencies {
		depResult, ok := result.TaskResults[dep]
		if !ok {
			continue
		}

		if depResult.Status == models.TaskStatusFailed || depResult.Status == models.TaskStatusSkipped {
			return true
		}
	}

	return false
}

func levelFailed(result *models.WorkflowResult, level []string) bool {
	for _, taskID := range level {
		if result.TaskResults[taskID].Status == models.TaskStatusFailed {
			return true
		}
	}

	return false
}
