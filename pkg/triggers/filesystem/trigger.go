// Package filesystem provides a polling directory-watch trigger.
package filesystem

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/forgeops/automaton/pkg/protocol"
)

const triggerType = "filesystem"

const defaultPollInterval = 5 * time.Second

type fileState struct {
	modTime time.Time
	size    int64
}

// Trigger watches a directory tree by periodic snapshot diffing and fires
// on created, modified, and removed files.
type Trigger struct {
	Path         string
	PollInterval time.Duration
	Enabled      bool

	callback protocol.TriggerCallback
	logger   *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewTrigger builds a filesystem trigger from declarative config.
func NewTrigger(config map[string]any, logger *slog.Logger) (*Trigger, error) {
	path, _ := config["path"].(string)

	interval := defaultPollInterval
	if seconds, ok := config["poll_interval_seconds"].(float64); ok && seconds > 0 {
		interval = time.Duration(seconds * float64(time.Second))
	}

	enabled := true
	if enabledVal, ok := config["enabled"].(bool); ok {
		enabled = enabledVal
	}

	trigger := &Trigger{
		Path:         path,
		PollInterval: interval,
		Enabled:      enabled,
		stopCh:       make(chan struct{}),
		logger: logger.With(
			"module", "filesystem_trigger",
			"path", path,
		),
	}

	if err := trigger.Validate(); err != nil {
		return nil, err
	}

	return trigger, nil
}

// Validate checks that the watched path is configured and exists.
func (t *Trigger) Validate() error {
	if t.Path == "" {
		return errors.New("filesystem trigger path is required")
	}

	info, err := os.Stat(t.Path)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return errors.New("filesystem trigger path must be a directory")
	}

	return nil
}

// Start launches the polling loop in the background.
func (t *Trigger) Start(ctx context.Context, callback protocol.TriggerCallback) error {
	if !t.Enabled {
		t.logger.Info("Filesystem trigger is disabled")

		return nil
	}

	t.callback = callback
	t.wg.Add(1)

	go t.watch(ctx)

	t.logger.Info("Filesystem trigger started", "poll_interval", t.PollInterval)

	return nil
}

// Stop halts the polling loop and waits for it to exit.
func (t *Trigger) Stop(_ context.Context) error {
	t.logger.Info("Stopping filesystem trigger")
	t.stopOnce.Do(func() { close(t.stopCh) })
	t.wg.Wait()

	return nil
}

func (t *Trigger) watch(ctx context.Context) {
	defer t.wg.Done()

	previous, err := t.snapshot()
	if err != nil {
		t.logger.Error("Initial filesystem snapshot failed", "error", err)

		previous = make(map[string]fileState)
	}

	ticker := time.NewTicker(t.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			current, err := t.snapshot()
			if err != nil {
				t.logger.Warn("Filesystem snapshot failed", "error", err)

				continue
			}

			t.diff(ctx, previous, current)
			previous = current
		case <-t.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// snapshot records the mod time and size of every regular file under Path.
func (t *Trigger) snapshot() (map[string]fileState, error) {
	states := make(map[string]fileState)

	err := filepath.WalkDir(t.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Files can vanish between listing and stat; skip them.
			return nil
		}

		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		states[path] = fileState{modTime: info.ModTime(), size: info.Size()}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return states, nil
}

func (t *Trigger) diff(ctx context.Context, previous, current map[string]fileState) {
	for path, state := range current {
		prev, existed := previous[path]

		switch {
		case !existed:
			t.fire(ctx, "created", path)
		case prev.modTime != state.modTime || prev.size != state.size:
			t.fire(ctx, "modified", path)
		}
	}

	for path := range previous {
		if _, exists := current[path]; !exists {
			t.fire(ctx, "removed", path)
		}
	}
}

func (t *Trigger) fire(ctx context.Context, change, path string) {
	event := protocol.TriggerEvent{
		TriggerType: triggerType,
		Data: map[string]any{
			"path":  t.Path,
			"event": change,
			"file":  path,
		},
	}

	if err := t.callback(ctx, event); err != nil {
		t.logger.Error("Filesystem trigger callback failed", "file", path, "error", err)
	}
}
