// Package webhook provides the HTTP webhook trigger and its shared server.
package webhook

import (
	"context"
	"errors"
	"log/slog"

	"github.com/forgeops/automaton/pkg/protocol"
)

const triggerType = "webhook"

// Trigger fires when an HTTP request hits its registered path on the
// shared webhook server.
type Trigger struct {
	Path    string
	Method  string
	Enabled bool

	server *Server
	logger *slog.Logger
}

// NewTrigger builds a webhook trigger from declarative config. The server
// is shared across all webhook triggers created by the same factory.
func NewTrigger(config map[string]any, server *Server, logger *slog.Logger) (*Trigger, error) {
	path, ok := config["path"].(string)
	if !ok {
		path = "/webhook"
	}

	method, ok := config["method"].(string)
	if !ok {
		method = "POST"
	}

	enabled := true
	if enabledVal, ok := config["enabled"].(bool); ok {
		enabled = enabledVal
	}

	trigger := &Trigger{
		Path:    path,
		Method:  method,
		Enabled: enabled,
		server:  server,
		logger: logger.With(
			"module", "webhook_trigger",
			"path", path,
			"method", method,
		),
	}

	if err := trigger.Validate(); err != nil {
		return nil, err
	}

	return trigger, nil
}

// Validate checks the endpoint path.
func (t *Trigger) Validate() error {
	if t.Path == "" {
		return errors.New("webhook trigger path is required")
	}

	if t.Path[0] != '/' {
		return errors.New("webhook trigger path must start with '/'")
	}

	return nil
}

// Start registers the endpoint and makes sure the shared server is listening.
func (t *Trigger) Start(ctx context.Context, callback protocol.TriggerCallback) error {
	if !t.Enabled {
		t.logger.Info("Webhook trigger is disabled")

		return nil
	}

	if t.server == nil {
		return errors.New("webhook trigger requires a server")
	}

	if err := t.server.Register(t.Path, t.Method, callback); err != nil {
		return err
	}

	if err := t.server.Start(ctx); err != nil {
		t.server.Unregister(t.Path)

		return err
	}

	t.logger.Info("Webhook trigger started")

	return nil
}

// Stop removes the endpoint. The shared server keeps running for other
// triggers until its context is cancelled.
func (t *Trigger) Stop(_ context.Context) error {
	t.logger.Info("Stopping webhook trigger")

	if t.server != nil {
		t.server.Unregister(t.Path)
	}

	return nil
}
