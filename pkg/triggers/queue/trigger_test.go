package queue_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/forgeops/automaton/pkg/triggers/queue"
)

func TestQueueTriggerValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  map[string]any
		wantErr bool
	}{
		{
			name:   "valid config",
			config: map[string]any{"queue": "automation-jobs"},
		},
		{
			name: "valid with connection settings",
			config: map[string]any{
				"queue": "automation-jobs",
				"connection": map[string]any{
					"addr": "localhost:6379",
					"db":   "2",
				},
			},
		},
		{
			name:    "missing queue name",
			config:  map[string]any{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := queue.NewTrigger(tt.config, slog.Default())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestQueueFactory(t *testing.T) {
	t.Parallel()

	factory := queue.NewFactory()
	assert.Equal(t, "queue", factory.ID())
	assert.NotNil(t, factory.Schema())

	_, err := factory.Create(nil, slog.Default())
	assert.ErrorIs(t, err, queue.ErrConfigNil)
}
