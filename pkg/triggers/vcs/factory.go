package vcs

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/forgeops/automaton/pkg/protocol"
)

var ErrConfigNil = errors.New("config cannot be nil")

// NewFactory returns the factory for vcs triggers.
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
		"title":       "VCS Trigger Configuration",
		"description": "Configuration for git commit triggering",
		"properties": map[string]any{
			"repo_path": map[string]any{
				"type":        "string",
				"description": "Path to a local git repository",
			},
			"poll_interval_seconds": map[string]any{
				"type":        "number",
				"description": "HEAD polling interval in seconds",
				"default":     10,
			},
			"enabled": map[string]any{
				"type":        "boolean",
				"description": "Whether this trigger is active",
				"default":     true,
			},
		},
		"required": []string{"repo_path"},
	}
}

func (f *Factory) Create(config map[string]any, logger *slog.Logger) (protocol.Trigger, error) {
	if config == nil {
		return nil, ErrConfigNil
	}

	trigger, err := NewTrigger(config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create vcs trigger: %w", err)
	}

	return trigger, nil
}
