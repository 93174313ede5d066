// Package triggers supervises the lifecycle of named trigger instances.
package triggers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/forgeops/automaton/pkg/protocol"
	"github.com/forgeops/automaton/pkg/registry"
)

// Manager owns a registry of named triggers and starts/stops them
// concurrently. One trigger failing to start or stop never blocks the rest;
// errors are collected and returned joined.
type Manager struct {
	logger *slog.Logger

	mu        sync.RWMutex
	triggers  map[string]protocol.Trigger
	callbacks map[string]protocol.TriggerCallback
}

// NewManager creates an empty trigger manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger:    logger.With("module", "trigger_manager"),
		triggers:  make(map[string]protocol.Trigger),
		callbacks: make(map[string]protocol.TriggerCallback),
	}
}

// AddTrigger registers a named trigger with the callback its firings go to.
func (m *Manager) AddTrigger(name string, trigger protocol.Trigger, callback protocol.TriggerCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.triggers[name] = trigger
	m.callbacks[name] = callback
	m.logger.Debug("Added trigger", "trigger", name)
}

// Trigger returns the named trigger, if registered.
func (m *Manager) Trigger(name string) (protocol.Trigger, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	trigger, ok := m.triggers[name]

	return trigger, ok
}

// TriggerNames lists registered trigger names.
func (m *Manager) TriggerNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.triggers))
	for name := range m.triggers {
		names = append(names, name)
	}

	return names
}

// StartAll starts every registered trigger concurrently and waits until
// each Start call has returned. Start is expected to launch the trigger's
// loop in the background and return promptly.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.forEach(func(name string, trigger protocol.Trigger) error {
		m.logger.Info("Starting trigger", "trigger", name)

		if err := trigger.Start(ctx, m.callbacks[name]); err != nil {
			return fmt.Errorf("starting trigger %q: %w", name, err)
		}

		return nil
	})
}

// StopAll stops every trigger concurrently and waits for all of them.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.forEach(func(name string, trigger protocol.Trigger) error {
		if err := trigger.Stop(ctx); err != nil {
			return fmt.Errorf("stopping trigger %q: %w", name, err)
		}

		m.logger.Info("Stopped trigger", "trigger", name)

		return nil
	})
}

// forEach fans the operation out over all triggers and joins the errors.
// Callers hold m.mu.
func (m *Manager) forEach(op func(name string, trigger protocol.Trigger) error) error {
	errCh := make(chan error, len(m.triggers))

	var wg sync.WaitGroup

	for name, trigger := range m.triggers {
		wg.Add(1)

		go func(name string, trigger protocol.Trigger) {
			defer wg.Done()
			errCh <- op(name, trigger)
		}(name, trigger)
	}

	wg.Wait()
	close(errCh)

	var errs []error

	for err := range errCh {
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// NewManagerFromConfig builds a manager from a declarative name→config map.
// Unknown or invalid trigger types are logged and skipped, not fatal.
func NewManagerFromConfig(configs map[string]map[string]any, reg *registry.Registry, callback protocol.TriggerCallback, logger *slog.Logger) *Manager {
	manager := NewManager(logger)

	for name, config := range configs {
		triggerType, _ := config["type"].(string)

		trigger, err := reg.CreateTrigger(triggerType, config)
		if err != nil {
			manager.logger.Warn("Skipping trigger", "trigger", name, "type", triggerType, "error", err)

			continue
		}

		manager.AddTrigger(name, trigger, callback)
	}

	return manager
}
