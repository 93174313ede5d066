// Package events defines the fixed registry of automation event types and
// their payload schemas. Payloads travel over the bus as maps; the typed
// structs here are the documented shape per event type.
package events

import (
	"time"

	"github.com/forgeops/automaton/pkg/eventbus"
	"github.com/forgeops/automaton/pkg/models"
)

// Event types emitted by the automation engine.
const (
	WorkflowCompletedEvent = "workflow.completed"
	WorkflowFailedEvent    = "workflow.failed"
	WorkflowCancelledEvent = "workflow.cancelled"
	TaskCompletedEvent     = "task.completed"
	TaskFailedEvent        = "task.failed"
	ScheduleTriggeredEvent = "schedule.triggered"
	TriggerFiredEvent      = "trigger.fired"
)

// Payload is implemented by every typed event payload.
type Payload interface {
	GetType() string
	ToPayload() map[string]any
}

// WorkflowFinished is the payload of workflow.completed, workflow.failed,
// and workflow.cancelled events.
type WorkflowFinished struct {
	WorkflowID  string
	ExecutionID string
	Status      models.WorkflowStatus
	TaskCount   int
	Duration    time.Duration
}

func (w WorkflowFinished) GetType() string {
	switch w.Status {
	case models.WorkflowStatusCancelled:
		return WorkflowCancelledEvent
	case models.WorkflowStatusFailed:
		return WorkflowFailedEvent
	default:
		return WorkflowCompletedEvent
	}
}

func (w WorkflowFinished) ToPayload() map[string]any {
	return map[string]any{
		"workflow_id":  w.WorkflowID,
		"execution_id": w.ExecutionID,
		"status":       string(w.Status),
		"task_count":   w.TaskCount,
		"duration_ms":  w.Duration.Milliseconds(),
	}
}

// TaskFinished is the payload of task.completed and task.failed events.
type TaskFinished struct {
	WorkflowID  string
	ExecutionID string
	TaskID      string
	Status      models.TaskStatus
	Error       string
	Duration    time.Duration
}

func (t TaskFinished) GetType() string {
	if t.Status == models.TaskStatusFailed {
		return TaskFailedEvent
	}

	return TaskCompletedEvent
}

func (t TaskFinished) ToPayload() map[string]any {
	payload := map[string]any{
		"workflow_id":  t.WorkflowID,
		"execution_id": t.ExecutionID,
		"task_id":      t.TaskID,
		"status":       string(t.Status),
		"duration_ms":  t.Duration.Milliseconds(),
	}
	if t.Error != "" {
		payload["error"] = t.Error
	}

	return payload
}

// ScheduleTriggered is the payload of schedule.triggered events.
type ScheduleTriggered struct {
	ScheduleName string
	WorkflowID   string
	Data         map[string]any
}

func (s ScheduleTriggered) GetType() string {
	return ScheduleTriggeredEvent
}

func (s ScheduleTriggered) ToPayload() map[string]any {
	return map[string]any{
		"schedule":    s.ScheduleName,
		"workflow_id": s.WorkflowID,
		"data":        s.Data,
	}
}

// TriggerFired is the payload of trigger.fired events.
type TriggerFired struct {
	TriggerName string
	TriggerType string
	Data        map[string]any
	Context     map[string]any
}

func (t TriggerFired) GetType() string {
	return TriggerFiredEvent
}

func (t TriggerFired) ToPayload() map[string]any {
	return map[string]any{
		"trigger": t.TriggerName,
		"type":    t.TriggerType,
		"data":    t.Data,
		"context": t.Context,
	}
}

// NewAutomationEvent converts a typed payload into a bus event.
func NewAutomationEvent(payload Payload) eventbus.AutomationEvent {
	return eventbus.NewEvent(payload.GetType(), payload.ToPayload())
}
