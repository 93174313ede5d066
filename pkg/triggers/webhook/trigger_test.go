package webhook_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeops/automaton/pkg/triggers/webhook"
)

func TestWebhookTriggerValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  map[string]any
		wantErr bool
	}{
		{
			name:   "explicit path",
			config: map[string]any{"path": "/hooks/deploy"},
		},
		{
			name:   "default path when missing",
			config: map[string]any{},
		},
		{
			name:    "path without leading slash",
			config:  map[string]any{"path": "hooks/deploy"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := webhook.NewTrigger(tt.config, nil, slog.Default())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWebhookServerRegistration(t *testing.T) {
	t.Parallel()

	server := webhook.NewServer(0, slog.Default())

	require.NoError(t, server.Register("/hooks/a", "POST", nil))
	assert.Error(t, server.Register("/hooks/a", "POST", nil), "duplicate path is rejected")

	server.Unregister("/hooks/a")
	assert.NoError(t, server.Register("/hooks/a", "POST", nil), "path is free after unregister")
}

func TestWebhookTriggerStartRequiresServer(t *testing.T) {
	t.Parallel()

	trigger, err := webhook.NewTrigger(map[string]any{"path": "/orphan"}, nil, slog.Default())
	require.NoError(t, err)

	assert.Error(t, trigger.Start(t.Context(), nil))
}

func TestWebhookFactory(t *testing.T) {
	t.Parallel()

	factory := webhook.NewFactory(webhook.NewServer(0, slog.Default()))
	assert.Equal(t, "webhook", factory.ID())

	_, err := factory.Create(nil, slog.Default())
	assert.ErrorIs(t, err, webhook.ErrConfigNil)
}
