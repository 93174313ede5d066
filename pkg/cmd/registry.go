package cmd

import (
	"log/slog"

	"github.com/forgeops/automaton/pkg/registry"
	"github.com/forgeops/automaton/pkg/triggers/cron"
	"github.com/forgeops/automaton/pkg/triggers/filesystem"
	"github.com/forgeops/automaton/pkg/triggers/queue"
	"github.com/forgeops/automaton/pkg/triggers/vcs"
	"github.com/forgeops/automaton/pkg/triggers/webhook"
)

// NewRegistry creates a trigger registry with every built-in trigger type.
// All webhook triggers created from it share one server on webhookPort.
func NewRegistry(webhookPort int, logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.RegisterTrigger(cron.NewFactory())
	reg.RegisterTrigger(filesystem.NewFactory())
	reg.RegisterTrigger(vcs.NewFactory())
	reg.RegisterTrigger(queue.NewFactory())
	reg.RegisterTrigger(webhook.NewFactory(webhook.NewServer(webhookPort, logger)))

	return reg
}
