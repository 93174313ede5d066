package file_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeops/automaton/pkg/models"
	"github.com/forgeops/automaton/pkg/persistence"
	"github.com/forgeops/automaton/pkg/persistence/file"
)

func newStore(t *testing.T) *file.Persistence {
	t.Helper()

	store, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	return store
}

func sampleExecution(executionID, workflowID string, startedAt time.Time) *models.WorkflowResult {
	return &models.WorkflowResult{
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		Status:      models.WorkflowStatusCompleted,
		TaskResults: map[string]models.TaskResult{
			"a": {TaskID: "a", Status: models.TaskStatusCompleted},
		},
		StartedAt:   startedAt,
		CompletedAt: startedAt.Add(time.Second),
	}
}

func TestSaveAndLoadExecution(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	execution := sampleExecution("run-1", "wf-1", time.Now().UTC())

	require.NoError(t, store.SaveExecution(t.Context(), execution))

	loaded, err := store.ExecutionByID(t.Context(), "run-1")
	require.NoError(t, err)

	assert.Equal(t, execution.WorkflowID, loaded.WorkflowID)
	assert.Equal(t, execution.Status, loaded.Status)
	assert.Equal(t, models.TaskStatusCompleted, loaded.TaskResults["a"].Status)
}

func TestExecutionNotFound(t *testing.T) {
	t.Parallel()

	_, err := newStore(t).ExecutionByID(t.Context(), "missing")
	assert.ErrorIs(t, err, persistence.ErrExecutionNotFound)
	assert.True(t, persistence.IsExecutionNotFound(err))
}

func TestSaveExecutionRequiresID(t *testing.T) {
	t.Parallel()

	err := newStore(t).SaveExecution(t.Context(), &models.WorkflowResult{})
	assert.Error(t, err)
}

func TestRecentExecutionsOrderAndLimit(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	base := time.Now().UTC().Add(-time.Hour)

	require.NoError(t, store.SaveExecution(t.Context(), sampleExecution("run-old", "wf-1", base)))
	require.NoError(t, store.SaveExecution(t.Context(), sampleExecution("run-mid", "wf-1", base.Add(10*time.Minute))))
	require.NoError(t, store.SaveExecution(t.Context(), sampleExecution("run-new", "wf-1", base.Add(20*time.Minute))))
	require.NoError(t, store.SaveExecution(t.Context(), sampleExecution("run-other", "wf-2", base.Add(30*time.Minute))))

	recent, err := store.RecentExecutions(t.Context(), "wf-1", 2)
	require.NoError(t, err)

	require.Len(t, recent, 2)
	assert.Equal(t, "run-new", recent[0].ExecutionID)
	assert.Equal(t, "run-mid", recent[1].ExecutionID)

	all, err := store.RecentExecutions(t.Context(), "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestConfigRoundTrip(t *testing.T) {
	t.Parallel()

	store := newStore(t)

	require.NoError(t, store.SaveConfig(t.Context(), "triggers", map[string]any{
		"tick": map[string]any{"type": "cron", "cron": "*/5 * * * *"},
	}))

	loaded, err := store.Config(t.Context(), "triggers")
	require.NoError(t, err)

	tick, ok := loaded["tick"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "cron", tick["type"])
}

func TestConfigNotFound(t *testing.T) {
	t.Parallel()

	_, err := newStore(t).Config(t.Context(), "missing")
	assert.ErrorIs(t, err, persistence.ErrConfigNotFound)
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	assert.NoError(t, store.HealthCheck(t.Context()))
	assert.NoError(t, store.Close(t.Context()))
}
