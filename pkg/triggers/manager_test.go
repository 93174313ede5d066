package triggers_test

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeops/automaton/pkg/protocol"
	"github.com/forgeops/automaton/pkg/registry"
	"github.com/forgeops/automaton/pkg/triggers"
	"github.com/forgeops/automaton/pkg/triggers/cron"
)

type fakeTrigger struct {
	startErr error
	stopErr  error
	started  atomic.Bool
	stopped  atomic.Bool
}

func (f *fakeTrigger) Start(context.Context, protocol.TriggerCallback) error {
	f.started.Store(true)

	return f.startErr
}

func (f *fakeTrigger) Stop(context.Context) error {
	f.stopped.Store(true)

	return f.stopErr
}

func (f *fakeTrigger) Validate() error { return nil }

func noopCallback(context.Context, protocol.TriggerEvent) error { return nil }

func TestManagerStartStopAll(t *testing.T) {
	t.Parallel()

	manager := triggers.NewManager(slog.Default())

	one := &fakeTrigger{}
	two := &fakeTrigger{}
	manager.AddTrigger("one", one, noopCallback)
	manager.AddTrigger("two", two, noopCallback)

	require.NoError(t, manager.StartAll(t.Context()))
	assert.True(t, one.started.Load())
	assert.True(t, two.started.Load())

	require.NoError(t, manager.StopAll(t.Context()))
	assert.True(t, one.stopped.Load())
	assert.True(t, two.stopped.Load())
}

func TestManagerStartAllCollectsErrors(t *testing.T) {
	t.Parallel()

	manager := triggers.NewManager(slog.Default())

	healthy := &fakeTrigger{}
	broken := &fakeTrigger{startErr: errors.New("listener refused")}
	manager.AddTrigger("healthy", healthy, noopCallback)
	manager.AddTrigger("broken", broken, noopCallback)

	err := manager.StartAll(t.Context())
	require.Error(t, err)
	assert.ErrorContains(t, err, "broken")

	// The failing trigger never blocks its siblings.
	assert.True(t, healthy.started.Load())
}

func TestManagerStopAllCollectsErrors(t *testing.T) {
	t.Parallel()

	manager := triggers.NewManager(slog.Default())
	manager.AddTrigger("sticky", &fakeTrigger{stopErr: errors.New("will not die")}, noopCallback)

	err := manager.StopAll(t.Context())
	assert.ErrorContains(t, err, "sticky")
}

func TestManagerLookup(t *testing.T) {
	t.Parallel()

	manager := triggers.NewManager(slog.Default())
	fake := &fakeTrigger{}
	manager.AddTrigger("only", fake, noopCallback)

	got, ok := manager.Trigger("only")
	require.True(t, ok)
	assert.Same(t, protocol.Trigger(fake), got)

	_, ok = manager.Trigger("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"only"}, manager.TriggerNames())
}

func TestNewManagerFromConfigSkipsUnknownTypes(t *testing.T) {
	t.Parallel()

	reg := registry.NewRegistry(slog.Default())
	reg.RegisterTrigger(cron.NewFactory())

	configs := map[string]map[string]any{
		"tick":    {"type": "cron", "cron": "*/5 * * * *"},
		"unknown": {"type": "quantum"},
		"invalid": {"type": "cron"},
	}

	manager := triggers.NewManagerFromConfig(configs, reg, noopCallback, slog.Default())

	names := manager.TriggerNames()
	assert.Equal(t, []string{"tick"}, names, "unknown and invalid triggers are skipped")
}
