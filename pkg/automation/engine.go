// Package automation wires the workflow engine, event bus, scheduler, and
// trigger manager into a single runnable engine.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/forgeops/automaton/pkg/eventbus"
	"github.com/forgeops/automaton/pkg/events"
	"github.com/forgeops/automaton/pkg/models"
	"github.com/forgeops/automaton/pkg/persistence"
	"github.com/forgeops/automaton/pkg/protocol"
	"github.com/forgeops/automaton/pkg/scheduler"
	"github.com/forgeops/automaton/pkg/triggers"
	"github.com/forgeops/automaton/pkg/workflow"
)

// State is the engine lifecycle state.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// ScheduleBinding ties a named schedule to a workflow and the run context
// its executions receive.
type ScheduleBinding struct {
	WorkflowID string
	Context    map[string]any
}

// TriggerBinding ties a named trigger to a workflow.
type TriggerBinding struct {
	WorkflowID string
	Context    map[string]any
}

// Engine is the automation composition root. It owns workflow registration,
// schedule and trigger bindings, and the lifecycle of every subsystem.
type Engine struct {
	logger   *slog.Logger
	validate *validator.Validate

	runner    *workflow.Engine
	bus       *eventbus.Bus
	scheduler *scheduler.Scheduler
	triggers  *triggers.Manager
	store     persistence.Persistence

	mu               sync.RWMutex
	state            State
	workflows        map[string]*models.Workflow
	scheduleBindings map[string]ScheduleBinding
	triggerBindings  map[string][]TriggerBinding
}

// NewEngine builds an automation engine from its subsystems.
func NewEngine(
	runner *workflow.Engine,
	bus *eventbus.Bus,
	sched *scheduler.Scheduler,
	manager *triggers.Manager,
	store persistence.Persistence,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		logger:           logger.With("module", "automation_engine"),
		validate:         validator.New(validator.WithRequiredStructEnabled()),
		runner:           runner,
		bus:              bus,
		scheduler:        sched,
		triggers:         manager,
		store:            store,
		state:            StateStopped,
		workflows:        make(map[string]*models.Workflow),
		scheduleBindings: make(map[string]ScheduleBinding),
		triggerBindings:  make(map[string][]TriggerBinding),
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.state
}

func (e *Engine) transition(from, to State) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != from {
		if to == StateStarting {
			return ErrAlreadyRunning
		}

		return ErrNotRunning
	}

	e.state = to

	return nil
}

func (e *Engine) setState(state State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = state
}

// Start boots every subsystem in dependency order: persistence health check,
// event bus, scheduler, then triggers. A failure rolls the state back to
// stopped and returns the cause.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.transition(StateStopped, StateStarting); err != nil {
		return err
	}

	e.logger.Info("Starting automation engine")

	if err := e.boot(ctx); err != nil {
		e.setState(StateStopped)

		return err
	}

	// One handler serves every trigger binding; bindings are consulted at
	// dispatch time so they can be added while running.
	e.bus.Subscribe(events.TriggerFiredEvent, e.handleTriggerFired)

	e.setState(StateRunning)
	e.logger.Info("Automation engine started")

	return nil
}

func (e *Engine) boot(ctx context.Context) error {
	if e.store != nil {
		if err := e.store.HealthCheck(ctx); err != nil {
			return fmt.Errorf("persistence health check failed: %w", err)
		}
	}

	if err := e.bus.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event bus: %w", err)
	}

	if err := e.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	if err := e.triggers.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start triggers: %w", err)
	}

	return nil
}

// Stop shuts subsystems down in reverse order of Start.
func (e *Engine) Stop(ctx context.Context) error {
	if err := e.transition(StateRunning, StateStopping); err != nil {
		return err
	}

	e.logger.Info("Stopping automation engine")

	var errs []error

	if err := e.triggers.StopAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop triggers: %w", err))
	}

	if err := e.scheduler.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop scheduler: %w", err))
	}

	if err := e.bus.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop event bus: %w", err))
	}

	if e.store != nil {
		if err := e.store.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close persistence: %w", err))
		}
	}

	e.setState(StateStopped)
	e.logger.Info("Automation engine stopped")

	return errors.Join(errs...)
}

// RegisterWorkflow validates a workflow and adds it to the registry.
func (e *Engine) RegisterWorkflow(wf *models.Workflow) error {
	if errs := wf.Validate(); len(errs) > 0 {
		return fmt.Errorf("%w: %w", workflow.ErrWorkflowInvalid, errors.Join(errs...))
	}

	for _, task := range wf.Tasks() {
		if err := e.validate.Struct(task); err != nil {
			return fmt.Errorf("%w: task %s: %w", workflow.ErrWorkflowInvalid, task.ID, err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.workflows[wf.ID]; exists {
		return fmt.Errorf("%w: %s", ErrWorkflowExists, wf.ID)
	}

	e.workflows[wf.ID] = wf
	e.logger.Info("Registered workflow", "workflow_id", wf.ID, "tasks", wf.TaskCount())

	return nil
}

// UnregisterWorkflow removes a workflow and any bindings pointing at it.
func (e *Engine) UnregisterWorkflow(workflowID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.workflows, workflowID)

	for name, binding := range e.scheduleBindings {
		if binding.WorkflowID == workflowID {
			delete(e.scheduleBindings, name)
		}
	}

	for name, bindings := range e.triggerBindings {
		kept := bindings[:0]

		for _, binding := range bindings {
			if binding.WorkflowID != workflowID {
				kept = append(kept, binding)
			}
		}

		if len(kept) == 0 {
			delete(e.triggerBindings, name)
		} else {
			e.triggerBindings[name] = kept
		}
	}

	e.logger.Info("Unregistered workflow", "workflow_id", workflowID)
}

// Workflow returns the registered workflow, if any.
func (e *Engine) Workflow(workflowID string) (*models.Workflow, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	wf, ok := e.workflows[workflowID]

	return wf, ok
}

// ScheduleWorkflow binds a cron schedule to a registered workflow. Each
// firing runs the workflow with the given run context.
func (e *Engine) ScheduleWorkflow(ctx context.Context, schedule models.Schedule, workflowID string, runContext map[string]any) error {
	e.mu.RLock()
	_, known := e.workflows[workflowID]
	e.mu.RUnlock()

	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflowID)
	}

	if err := e.scheduler.AddSchedule(ctx, schedule); err != nil {
		return err
	}

	e.mu.Lock()
	e.scheduleBindings[schedule.Name] = ScheduleBinding{WorkflowID: workflowID, Context: runContext}
	e.mu.Unlock()

	e.scheduler.AddCallback(schedule.Name, e.handleScheduleEvent)
	e.logger.Info("Scheduled workflow", "workflow_id", workflowID, "schedule", schedule.Name, "cron", schedule.CronExpression)

	return nil
}

// handleScheduleEvent resolves the schedule binding and submits the workflow
// run as a scheduler job, so firings queue instead of piling up goroutines.
func (e *Engine) handleScheduleEvent(ctx context.Context, event models.ScheduleEvent) error {
	e.mu.RLock()
	binding, bound := e.scheduleBindings[event.ScheduleName]
	e.mu.RUnlock()

	if !bound {
		return fmt.Errorf("no workflow bound to schedule %s", event.ScheduleName)
	}

	e.emit(events.ScheduleTriggered{
		ScheduleName: event.ScheduleName,
		WorkflowID:   binding.WorkflowID,
		Data:         event.Data,
	})

	runContext := mergeContext(binding.Context, map[string]any{"schedule": event.ScheduleName})

	_, err := e.scheduler.SubmitJob(binding.WorkflowID, func(jobCtx context.Context) error {
		_, runErr := e.RunWorkflow(jobCtx, binding.WorkflowID, runContext)

		return runErr
	})

	return err
}

// RunWorkflow executes a registered workflow, persists the result, and emits
// per-task and workflow completion events.
func (e *Engine) RunWorkflow(ctx context.Context, workflowID string, runContext map[string]any) (*models.WorkflowResult, error) {
	e.mu.RLock()
	wf, known := e.workflows[workflowID]
	e.mu.RUnlock()

	if !known {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflowID)
	}

	result, err := e.runner.ExecuteWorkflow(ctx, wf, runContext)
	if err != nil {
		return nil, err
	}

	if e.store != nil {
		if saveErr := e.store.SaveExecution(ctx, result); saveErr != nil {
			e.logger.Error("Failed to persist execution", "execution_id", result.ExecutionID, "error", saveErr)
		}
	}

	e.emitResults(result)

	return result, nil
}

// CancelWorkflow requests cancellation of a running workflow.
func (e *Engine) CancelWorkflow(workflowID string) bool {
	return e.runner.CancelWorkflow(workflowID)
}

// RegisterTrigger adds a named trigger whose firings become trigger.fired
// bus events.
func (e *Engine) RegisterTrigger(name string, trigger protocol.Trigger) {
	e.triggers.AddTrigger(name, trigger, e.triggerCallback(name))
}

func (e *Engine) triggerCallback(name string) protocol.TriggerCallback {
	return func(_ context.Context, event protocol.TriggerEvent) error {
		return e.bus.Publish(events.NewAutomationEvent(events.TriggerFired{
			TriggerName: name,
			TriggerType: event.TriggerType,
			Data:        event.Data,
			Context:     event.Context,
		}))
	}
}

// BindTriggerToWorkflow makes firings of the named trigger run the workflow.
func (e *Engine) BindTriggerToWorkflow(triggerName, workflowID string, runContext map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, known := e.workflows[workflowID]; !known {
		return fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflowID)
	}

	e.triggerBindings[triggerName] = append(e.triggerBindings[triggerName], TriggerBinding{
		WorkflowID: workflowID,
		Context:    runContext,
	})
	e.logger.Info("Bound trigger to workflow", "trigger", triggerName, "workflow_id", workflowID)

	return nil
}

func (e *Engine) handleTriggerFired(ctx context.Context, event eventbus.AutomationEvent) error {
	triggerName, _ := event.Payload["trigger"].(string)

	e.mu.RLock()
	bindings := make([]TriggerBinding, len(e.triggerBindings[triggerName]))
	copy(bindings, e.triggerBindings[triggerName])
	e.mu.RUnlock()

	var errs []error

	for _, binding := range bindings {
		runContext := mergeContext(binding.Context, map[string]any{"trigger": triggerName})
		if data, ok := event.Payload["data"].(map[string]any); ok {
			runContext["trigger_data"] = data
		}

		if _, err := e.RunWorkflow(ctx, binding.WorkflowID, runContext); err != nil {
			e.logger.Error("Trigger-bound workflow failed",
				"trigger", triggerName, "workflow_id", binding.WorkflowID, "error", err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// EmitManualEvent publishes an arbitrary event onto the bus.
func (e *Engine) EmitManualEvent(eventType string, payload map[string]any) error {
	return e.bus.Publish(eventbus.NewEvent(eventType, payload))
}

// Executions returns the most recent persisted executions for a workflow.
func (e *Engine) Executions(ctx context.Context, workflowID string, limit int) ([]*models.WorkflowResult, error) {
	if e.store == nil {
		return nil, nil
	}

	return e.store.RecentExecutions(ctx, workflowID, limit)
}

func (e *Engine) emitResults(result *models.WorkflowResult) {
	for taskID, taskResult := range result.TaskResults {
		if taskResult.Status != models.TaskStatusCompleted && taskResult.Status != models.TaskStatusFailed {
			continue
		}

		e.emit(events.TaskFinished{
			WorkflowID:  result.WorkflowID,
			ExecutionID: result.ExecutionID,
			TaskID:      taskID,
			Status:      taskResult.Status,
			Error:       taskResult.Error,
			Duration:    taskResult.Duration(),
		})
	}

	e.emit(events.WorkflowFinished{
		WorkflowID:  result.WorkflowID,
		ExecutionID: result.ExecutionID,
		Status:      result.Status,
		TaskCount:   len(result.TaskResults),
		Duration:    result.Duration(),
	})
}

func (e *Engine) emit(payload events.Payload) {
	if err := e.bus.Publish(events.NewAutomationEvent(payload)); err != nil {
		e.logger.Warn("Failed to publish event", "event_type", payload.GetType(), "error", err)
	}
}

func mergeContext(base, extra map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(extra))

	for k, v := range base {
		merged[k] = v
	}

	for k, v := range extra {
		merged[k] = v
	}

	return merged
}
