package filesystem_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeops/automaton/pkg/protocol"
	"github.com/forgeops/automaton/pkg/triggers/filesystem"
)

func TestFilesystemTriggerValidation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	tests := []struct {
		name    string
		config  map[string]any
		wantErr bool
	}{
		{
			name:   "valid directory",
			config: map[string]any{"path": dir},
		},
		{
			name:    "missing path",
			config:  map[string]any{},
			wantErr: true,
		},
		{
			name:    "nonexistent path",
			config:  map[string]any{"path": filepath.Join(dir, "nope")},
			wantErr: true,
		},
		{
			name:    "path is a file",
			config:  map[string]any{"path": file},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := filesystem.NewTrigger(tt.config, slog.Default())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

type eventCollector struct {
	mu     sync.Mutex
	events []protocol.TriggerEvent
}

func (c *eventCollector) callback(_ context.Context, event protocol.TriggerEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)

	return nil
}

func (c *eventCollector) find(change, file string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, event := range c.events {
		if event.Data["event"] == change && event.Data["file"] == file {
			return true
		}
	}

	return false
}

func TestFilesystemTriggerDetectsChanges(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	existing := filepath.Join(dir, "existing.txt")
	require.NoError(t, os.WriteFile(existing, []byte("v1"), 0o644))

	trigger, err := filesystem.NewTrigger(map[string]any{
		"path":                  dir,
		"poll_interval_seconds": 0.02,
	}, slog.Default())
	require.NoError(t, err)

	collector := &eventCollector{}
	require.NoError(t, trigger.Start(t.Context(), collector.callback))

	t.Cleanup(func() { _ = trigger.Stop(context.Background()) })

	created := filepath.Join(dir, "created.txt")
	require.NoError(t, os.WriteFile(created, []byte("new"), 0o644))

	assert.Eventually(t, func() bool {
		return collector.find("created", created)
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(existing, []byte("v2 with more bytes"), 0o644))

	assert.Eventually(t, func() bool {
		return collector.find("modified", existing)
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(created))

	assert.Eventually(t, func() bool {
		return collector.find("removed", created)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFilesystemFactorySchema(t *testing.T) {
	t.Parallel()

	factory := filesystem.NewFactory()
	assert.Equal(t, "filesystem", factory.ID())

	_, err := factory.Create(nil, slog.Default())
	assert.ErrorIs(t, err, filesystem.ErrConfigNil)
}
