package cron

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/forgeops/automaton/pkg/protocol"
)

// ErrConfigNil is returned when Create receives no configuration.
var ErrConfigNil = errors.New("config cannot be nil")

// NewFactory returns the factory for cron triggers.
func NewFactory() protocol.TriggerFactory {
	return &Factory{}
}

type Factory struct{}

func (f *Factory) ID() string {
	return triggerType
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type":        "object",
		"title":       "Cron Trigger Configuration",
		"description": "Configuration for time-based triggering",
		"properties": map[string]any{
			"cron": map[string]any{
				"type":        "string",
				"description": "Cron expression defining the schedule (standard 5-field format)",
			},
			"enabled": map[string]any{
				"type":        "boolean",
				"description": "Whether this trigger is active",
				"default":     true,
			},
		},
		"required": []string{"cron"},
	}
}

func (f *Factory) Create(config map[string]any, logger *slog.Logger) (protocol.Trigger, error) {
	if config == nil {
		return nil, ErrConfigNil
	}

	trigger, err := NewTrigger(config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create cron trigger: %w", err)
	}

	return trigger, nil
}
