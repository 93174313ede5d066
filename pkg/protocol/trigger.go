// Package protocol defines the contracts between the automation engine and
// pluggable trigger implementations.
package protocol

import (
	"context"
	"log/slog"
)

// TriggerEvent is produced by a trigger when its external condition fires.
type TriggerEvent struct {
	TriggerType string         `json:"trigger_type"`
	Data        map[string]any `json:"data,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
}

// TriggerCallback receives trigger events. Callbacks must not panic; errors
// are logged by the caller, not propagated.
type TriggerCallback func(ctx context.Context, event TriggerEvent) error

// Trigger is a long-lived supervised process observing one external
// condition. Start launches the observation loop in the background and
// returns promptly; the loop runs until Stop or ctx cancellation.
type Trigger interface {
	Start(ctx context.Context, callback TriggerCallback) error
	Stop(ctx context.Context) error
	Validate() error
}

// TriggerFactory builds triggers of one type from declarative configuration.
type TriggerFactory interface {
	ID() string
	Schema() map[string]any
	Create(config map[string]any, logger *slog.Logger) (Trigger, error)
}
