package webhook

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/forgeops/automaton/pkg/protocol"
)

var ErrConfigNil = errors.New("config cannot be nil")

// NewFactory returns the factory for webhook triggers. All triggers it
// creates share the given server.
func NewFactory(server *Server) protocol.TriggerFactory {
	return &Factory{server: server}
}

type Factory struct {
	server *Server
}

func (f *Factory) ID() string {
	return triggerType
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type":        "object",
		"title":       "Webhook Trigger Configuration",
		"description": "Configuration for HTTP webhook triggering",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Endpoint path on the webhook server",
				"default":     "/webhook",
			},
			"method": map[string]any{
				"type":        "string",
				"description": "Accepted HTTP method",
				"default":     "POST",
				"enum":        []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
			},
			"enabled": map[string]any{
				"type":        "boolean",
				"description": "Whether this trigger is active",
				"default":     true,
			},
		},
	}
}

func (f *Factory) Create(config map[string]any, logger *slog.Logger) (protocol.Trigger, error) {
	if config == nil {
		return nil, ErrConfigNil
	}

	trigger, err := NewTrigger(config, f.server, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook trigger: %w", err)
	}

	return trigger, nil
}
