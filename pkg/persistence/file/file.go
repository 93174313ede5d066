// Package file provides file-based persistence backed by JSON documents.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/forgeops/automaton/pkg/models"
	"github.com/forgeops/automaton/pkg/persistence"
)

const dirPerm = 0o755

// Persistence implements persistence.Persistence on the local file system.
// Executions live under <root>/executions, configuration under <root>/config.
type Persistence struct {
	root string
}

// NewPersistence creates a file persistence rooted at the given directory.
// Accepts plain paths and file:// URLs.
func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	for _, dir := range []string{cleanRoot, filepath.Join(cleanRoot, "executions"), filepath.Join(cleanRoot, "config")} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return nil, fmt.Errorf("failed to create persistence directory %s: %w", dir, err)
		}
	}

	return &Persistence{root: cleanRoot}, nil
}

func (p *Persistence) SaveExecution(_ context.Context, result *models.WorkflowResult) error {
	if result.ExecutionID == "" {
		return errors.New("execution id is required")
	}

	return p.writeJSON(p.executionPath(result.ExecutionID), result)
}

func (p *Persistence) ExecutionByID(_ context.Context, executionID string) (*models.WorkflowResult, error) {
	var result models.WorkflowResult

	if err := p.readJSON(p.executionPath(executionID), &result); err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, err
	}

	return &result, nil
}

// RecentExecutions returns the newest executions for a workflow, most recent
// first. A limit of zero or less means no limit.
func (p *Persistence) RecentExecutions(ctx context.Context, workflowID string, limit int) ([]*models.WorkflowResult, error) {
	root := os.DirFS(filepath.Join(p.root, "executions"))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list execution files: %w", err)
	}

	executions := make([]*models.WorkflowResult, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		executionID := strings.TrimSuffix(file, ".json")

		execution, err := p.ExecutionByID(ctx, executionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load execution %s: %w", executionID, err)
		}

		if workflowID == "" || execution.WorkflowID == workflowID {
			executions = append(executions, execution)
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	if limit > 0 && len(executions) > limit {
		executions = executions[:limit]
	}

	return executions, nil
}

func (p *Persistence) SaveConfig(_ context.Context, key string, value map[string]any) error {
	if key == "" {
		return errors.New("config key is required")
	}

	return p.writeJSON(p.configPath(key), value)
}

func (p *Persistence) Config(_ context.Context, key string) (map[string]any, error) {
	var value map[string]any

	if err := p.readJSON(p.configPath(key), &value); err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrConfigNotFound
		}

		return nil, err
	}

	return value, nil
}

// HealthCheck verifies the root directory still exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. Nothing to release for files.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func (p *Persistence) executionPath(executionID string) string {
	return filepath.Join(p.root, "executions", executionID+".json")
}

func (p *Persistence) configPath(key string) string {
	return filepath.Join(p.root, "config", key+".json")
}

func (p *Persistence) writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}

func (p *Persistence) readJSON(path string, value any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, value); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}

	return nil
}
