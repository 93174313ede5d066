package registry_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeops/automaton/pkg/registry"
	"github.com/forgeops/automaton/pkg/triggers/cron"
	"github.com/forgeops/automaton/pkg/triggers/queue"
)

func newRegistry() *registry.Registry {
	reg := registry.NewRegistry(slog.Default())
	reg.RegisterTrigger(cron.NewFactory())
	reg.RegisterTrigger(queue.NewFactory())

	return reg
}

func TestCreateTriggerUnknownType(t *testing.T) {
	t.Parallel()

	_, err := newRegistry().CreateTrigger("teleport", map[string]any{})
	assert.ErrorContains(t, err, "not registered")
}

func TestCreateTriggerValidatesSchema(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		triggerType string
		config      map[string]any
		wantErr     string
	}{
		{
			name:        "valid cron config",
			triggerType: "cron",
			config:      map[string]any{"cron": "*/5 * * * *"},
		},
		{
			name:        "cron missing required field",
			triggerType: "cron",
			config:      map[string]any{"enabled": true},
			wantErr:     "invalid config",
		},
		{
			name:        "cron wrong field type",
			triggerType: "cron",
			config:      map[string]any{"cron": 42},
			wantErr:     "invalid config",
		},
		{
			name:        "queue missing name",
			triggerType: "queue",
			config:      map[string]any{},
			wantErr:     "invalid config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			trigger, err := newRegistry().CreateTrigger(tt.triggerType, tt.config)

			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.NotNil(t, trigger)
		})
	}
}

func TestCreateTriggerRejectsBadExpression(t *testing.T) {
	t.Parallel()

	// Passes schema validation but fails the trigger's own Validate.
	_, err := newRegistry().CreateTrigger("cron", map[string]any{"cron": "not a cron"})
	assert.ErrorContains(t, err, "invalid cron expression")
}

func TestAvailableTriggers(t *testing.T) {
	t.Parallel()

	types := newRegistry().AvailableTriggers()
	assert.ElementsMatch(t, []string{"cron", "queue"}, types)
}
