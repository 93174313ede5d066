package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/forgeops/automaton/pkg/automation"
	"github.com/forgeops/automaton/pkg/cmd"
	"github.com/forgeops/automaton/pkg/eventbus"
	"github.com/forgeops/automaton/pkg/log"
	"github.com/forgeops/automaton/pkg/otelhelper"
	"github.com/forgeops/automaton/pkg/persistence"
	"github.com/forgeops/automaton/pkg/registry"
	"github.com/forgeops/automaton/pkg/scheduler"
	"github.com/forgeops/automaton/pkg/triggers"
	"github.com/forgeops/automaton/pkg/workflow"
)

func main() {
	app := &cli.Command{
		Name:                  "automaton",
		EnableShellCompletion: true,
		Usage:                 "Run the automation engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Storage location for execution history and config",
				Value:   "file://./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "bridge",
				Usage:   "External event bridge provider (gochannel, kafka); empty disables the bridge",
				Value:   "",
				Sources: cli.EnvVars("EVENT_BRIDGE"),
			},
			&cli.IntFlag{
				Name:    "webhook-port",
				Usage:   "Port for the webhook trigger server",
				Value:   8085,
				Sources: cli.EnvVars("WEBHOOK_PORT"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces to the configured OTLP endpoint",
				Sources: cli.EnvVars("OTEL_TRACING_ENABLED"),
			},
		},
		Action: run,
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("automaton")
	logger.InfoContext(ctx, "Initializing automation engine")

	if command.Bool("tracing") {
		if _, err := otelhelper.NewTracer(ctx, "automaton"); err != nil {
			logger.WarnContext(ctx, "Failed to initialize tracing", "error", err)
		}
	}

	store, err := cmd.NewPersistence(command.String("database-url"))
	if err != nil {
		return err
	}

	bus := eventbus.NewBus(eventbus.Config{}, logger)

	var bridge *eventbus.Bridge

	if provider := command.String("bridge"); provider != "" {
		publisher, subscriber, err := cmd.NewBridgeChannel(provider, logger)
		if err != nil {
			return err
		}

		bridge = eventbus.NewBridge(bus, publisher, subscriber, logger)
	}

	engine := automation.NewEngine(
		workflow.NewEngine(workflow.NewDefaultExecutor(logger), logger),
		bus,
		scheduler.NewScheduler(logger),
		triggers.NewManager(logger),
		store,
		logger,
	)

	reg := cmd.NewRegistry(command.Int("webhook-port"), logger)
	loadTriggers(ctx, engine, reg, store, logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.Start(ctx); err != nil {
		return err
	}

	if bridge != nil {
		if err := bridge.Start(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to start event bridge", "error", err)
		}
	}

	logger.InfoContext(ctx, "Automation engine running")
	<-ctx.Done()

	shutdownCtx := context.Background()

	if bridge != nil {
		if err := bridge.Stop(); err != nil {
			logger.Error("Failed to stop event bridge", "error", err)
		}
	}

	return engine.Stop(shutdownCtx)
}

// loadTriggers registers triggers declared under the "triggers" config key,
// a name to trigger-config map. Unknown or invalid entries are skipped.
func loadTriggers(ctx context.Context, engine *automation.Engine, reg *registry.Registry, store persistence.Persistence, logger *slog.Logger) {
	configs, err := store.Config(ctx, "triggers")
	if err != nil {
		if !persistence.IsConfigNotFound(err) {
			logger.ErrorContext(ctx, "Failed to load trigger config", "error", err)
		}

		return
	}

	for name, raw := range configs {
		config, ok := raw.(map[string]any)
		if !ok {
			logger.WarnContext(ctx, "Skipping malformed trigger config", "trigger", name)

			continue
		}

		triggerType, _ := config["type"].(string)

		trigger, err := reg.CreateTrigger(triggerType, config)
		if err != nil {
			logger.WarnContext(ctx, "Skipping trigger", "trigger", name, "type", triggerType, "error", err)

			continue
		}

		engine.RegisterTrigger(name, trigger)
	}
}
