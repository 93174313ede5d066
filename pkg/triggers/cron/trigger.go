// Package cron provides the time-based trigger.
package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/forgeops/automaton/pkg/protocol"
)

const triggerType = "cron"

// Trigger fires on a cron schedule.
type Trigger struct {
	Expression string
	Enabled    bool

	cron     *cron.Cron
	callback protocol.TriggerCallback
	logger   *slog.Logger
}

// NewTrigger builds a cron trigger from declarative config.
func NewTrigger(config map[string]any, logger *slog.Logger) (*Trigger, error) {
	expression, _ := config["cron"].(string)

	enabled := true
	if enabledVal, ok := config["enabled"].(bool); ok {
		enabled = enabledVal
	}

	trigger := &Trigger{
		Expression: expression,
		Enabled:    enabled,
		logger: logger.With(
			"module", "cron_trigger",
			"cron", expression,
		),
	}

	if err := trigger.Validate(); err != nil {
		return nil, err
	}

	return trigger, nil
}

// Validate checks the cron expression.
func (t *Trigger) Validate() error {
	if t.Expression == "" {
		return errors.New("cron trigger expression is required")
	}

	if _, err := cron.ParseStandard(t.Expression); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	return nil
}

// Start arms the cron runner. Firings invoke the callback on their own
// goroutine so a slow consumer never delays the timer.
func (t *Trigger) Start(ctx context.Context, callback protocol.TriggerCallback) error {
	if !t.Enabled {
		t.logger.Info("Cron trigger is disabled")

		return nil
	}

	t.callback = callback
	t.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	if _, err := t.cron.AddFunc(t.Expression, func() { t.fire(ctx) }); err != nil {
		return fmt.Errorf("failed to add cron entry: %w", err)
	}

	t.cron.Start()
	t.logger.Info("Cron trigger started")

	return nil
}

func (t *Trigger) fire(ctx context.Context) {
	event := protocol.TriggerEvent{
		TriggerType: triggerType,
		Data: map[string]any{
			"schedule":  t.Expression,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}

	go func() {
		if err := t.callback(ctx, event); err != nil {
			t.logger.Error("Cron trigger callback failed", "error", err)
		}
	}()
}

// Stop halts the cron runner.
func (t *Trigger) Stop(_ context.Context) error {
	t.logger.Info("Stopping cron trigger")

	if t.cron != nil {
		t.cron.Stop()
	}

	return nil
}
