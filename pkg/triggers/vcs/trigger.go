// Package vcs provides a trigger that fires when a git repository's HEAD
// moves, detected by polling the ref files under .git.
package vcs

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/forgeops/automaton/pkg/protocol"
)

const triggerType = "vcs"

const defaultPollInterval = 10 * time.Second

// Trigger polls a local git repository and fires on commit events, carrying
// the branch and the new commit hash.
type Trigger struct {
	RepoPath     string
	PollInterval time.Duration
	Enabled      bool

	callback protocol.TriggerCallback
	logger   *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewTrigger builds a vcs trigger from declarative config.
func NewTrigger(config map[string]any, logger *slog.Logger) (*Trigger, error) {
	repoPath, _ := config["repo_path"].(string)

	interval := defaultPollInterval
	if seconds, ok := config["poll_interval_seconds"].(float64); ok && seconds > 0 {
		interval = time.Duration(seconds * float64(time.Second))
	}

	enabled := true
	if enabledVal, ok := config["enabled"].(bool); ok {
		enabled = enabledVal
	}

	trigger := &Trigger{
		RepoPath:     repoPath,
		PollInterval: interval,
		Enabled:      enabled,
		stopCh:       make(chan struct{}),
		logger: logger.With(
			"module", "vcs_trigger",
			"repo", repoPath,
		),
	}

	if err := trigger.Validate(); err != nil {
		return nil, err
	}

	return trigger, nil
}

// Validate checks that the path is a git repository.
func (t *Trigger) Validate() error {
	if t.RepoPath == "" {
		return errors.New("vcs trigger repo_path is required")
	}

	info, err := os.Stat(filepath.Join(t.RepoPath, ".git"))
	if err != nil {
		return errors.New("vcs trigger repo_path is not a git repository")
	}

	if !info.IsDir() {
		return errors.New("vcs trigger repo_path is not a git repository")
	}

	return nil
}

// Start launches the polling loop in the background.
func (t *Trigger) Start(ctx context.Context, callback protocol.TriggerCallback) error {
	if !t.Enabled {
		t.logger.Info("VCS trigger is disabled")

		return nil
	}

	t.callback = callback
	t.wg.Add(1)

	go t.watch(ctx)

	t.logger.Info("VCS trigger started", "poll_interval", t.PollInterval)

	return nil
}

// Stop halts the polling loop and waits for it to exit.
func (t *Trigger) Stop(_ context.Context) error {
	t.logger.Info("Stopping VCS trigger")
	t.stopOnce.Do(func() { close(t.stopCh) })
	t.wg.Wait()

	return nil
}

func (t *Trigger) watch(ctx context.Context) {
	defer t.wg.Done()

	branch, commit, err := t.head()
	if err != nil {
		t.logger.Error("Failed to read initial HEAD", "error", err)
	}

	ticker := time.NewTicker(t.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			currentBranch, currentCommit, err := t.head()
			if err != nil {
				t.logger.Warn("Failed to read HEAD", "error", err)

				continue
			}

			if currentCommit != commit || currentBranch != branch {
				t.fire(ctx, currentBranch, currentCommit, commit)

				branch, commit = currentBranch, currentCommit
			}
		case <-t.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// head resolves the current branch name and commit hash from the .git
// directory without shelling out to git.
func (t *Trigger) head() (branch, commit string, err error) {
	gitDir := filepath.Join(t.RepoPath, ".git")

	headData, err := os.ReadFile(filepath.Join(gitDir, "HEAD"))
	if err != nil {
		return "", "", err
	}

	head := strings.TrimSpace(string(headData))

	ref, isSymbolic := strings.CutPrefix(head, "ref: ")
	if !isSymbolic {
		// Detached HEAD holds the commit hash directly.
		return "", head, nil
	}

	branch = strings.TrimPrefix(ref, "refs/heads/")

	refData, err := os.ReadFile(filepath.Join(gitDir, filepath.FromSlash(ref)))
	if err == nil {
		return branch, strings.TrimSpace(string(refData)), nil
	}

	// Ref may be packed instead of loose.
	commit, err = t.packedRef(gitDir, ref)

	return branch, commit, err
}

func (t *Trigger) packedRef(gitDir, ref string) (string, error) {
	data, err := os.ReadFile(filepath.Join(gitDir, "packed-refs"))
	if err != nil {
		return "", err
	}

	for _, line := range strings.Split(string(data), "\n") {
		hash, name, found := strings.Cut(strings.TrimSpace(line), " ")
		if found && name == ref {
			return hash, nil
		}
	}

	return "", errors.New("ref not found: " + ref)
}

func (t *Trigger) fire(ctx context.Context, branch, commit, previous string) {
	event := protocol.TriggerEvent{
		TriggerType: triggerType,
		Data: map[string]any{
			"repo":            t.RepoPath,
			"event":           "commit",
			"branch":          branch,
			"commit":          commit,
			"previous_commit": previous,
		},
	}

	if err := t.callback(ctx, event); err != nil {
		t.logger.Error("VCS trigger callback failed", "commit", commit, "error", err)
	}
}
