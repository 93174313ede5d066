// Package registry maps trigger type ids to their factories and validates
// declarative trigger configuration against each factory's JSON schema.
package registry

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/forgeops/automaton/pkg/protocol"
)

// Registry holds the known trigger factories.
type Registry struct {
	logger           *slog.Logger
	triggerFactories map[string]protocol.TriggerFactory
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:           logger.With("module", "registry"),
		triggerFactories: make(map[string]protocol.TriggerFactory),
	}
}

// RegisterTrigger adds a factory, replacing any factory with the same id.
func (r *Registry) RegisterTrigger(factory protocol.TriggerFactory) {
	r.triggerFactories[factory.ID()] = factory
	r.logger.Debug("Registered trigger factory", "trigger_type", factory.ID())
}

// CreateTrigger validates the config against the factory schema and builds
// the trigger.
func (r *Registry) CreateTrigger(triggerType string, config map[string]any) (protocol.Trigger, error) {
	factory, ok := r.triggerFactories[triggerType]
	if !ok {
		return nil, fmt.Errorf("trigger type %q not registered", triggerType)
	}

	if err := r.validateConfig(factory, config); err != nil {
		return nil, fmt.Errorf("invalid config for trigger type %q: %w", triggerType, err)
	}

	return factory.Create(config, r.logger)
}

// AvailableTriggers lists the registered trigger type ids.
func (r *Registry) AvailableTriggers() []string {
	types := make([]string, 0, len(r.triggerFactories))
	for triggerType := range r.triggerFactories {
		types = append(types, triggerType)
	}

	return types
}

func (r *Registry) validateConfig(factory protocol.TriggerFactory, config map[string]any) error {
	schema := factory.Schema()
	if schema == nil {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}

	return fmt.Errorf("config does not match schema: %s", strings.Join(details, "; "))
}
