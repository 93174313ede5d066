// Package persistence provides the storage abstraction for execution history
// and engine configuration.
package persistence

import (
	"context"

	"github.com/forgeops/automaton/pkg/models"
)

type Persistence interface {
	SaveExecution(ctx context.Context, result *models.WorkflowResult) error
	ExecutionByID(ctx context.Context, executionID string) (*models.WorkflowResult, error)
	RecentExecutions(ctx context.Context, workflowID string, limit int) ([]*models.WorkflowResult, error)

	SaveConfig(ctx context.Context, key string, value map[string]any) error
	Config(ctx context.Context, key string) (map[string]any, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
