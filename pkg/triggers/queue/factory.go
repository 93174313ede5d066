package queue

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/forgeops/automaton/pkg/protocol"
)

var ErrConfigNil = errors.New("config cannot be nil")

// NewFactory returns the factory for queue triggers.
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
		"title":       "Queue Trigger Configuration",
		"description": "Configuration for Redis list consumption",
		"properties": map[string]any{
			"queue": map[string]any{
				"type":        "string",
				"description": "Redis list key to consume from",
			},
			"connection": map[string]any{
				"type":        "object",
				"description": "Redis connection settings (addr, password, db)",
			},
			"enabled": map[string]any{
				"type":        "boolean",
				"description": "Whether this trigger is active",
				"default":     true,
			},
		},
		"required": []string{"queue"},
	}
}

func (f *Factory) Create(config map[string]any, logger *slog.Logger) (protocol.Trigger, error) {
	if config == nil {
		return nil, ErrConfigNil
	}

	trigger, err := NewTrigger(config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create queue trigger: %w", err)
	}

	return trigger, nil
}
