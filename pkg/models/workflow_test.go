package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeops/automaton/pkg/models"
)

func buildWorkflow(deps map[string][]string) *models.Workflow {
	wf := models.NewWorkflow("wf-test", "Test Workflow")

	for _, id := range orderedKeys(deps) {
		wf.AddTask(&models.Task{ID: id, Name: id, Dependencies: deps[id]})
	}

	return wf
}

// orderedKeys keeps insertion deterministic across runs.
func orderedKeys(deps map[string][]string) []string {
	known := []string{"a", "b", "c", "d", "e", "f"}
	keys := make([]string, 0, len(deps))

	for _, id := range known {
		if _, ok := deps[id]; ok {
			keys = append(keys, id)
		}
	}

	return keys
}

func TestWorkflowValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		deps      map[string][]string
		wantErrs  int
		wantCycle bool
	}{
		{
			name: "valid diamond",
			deps: map[string][]string{
				"a": nil,
				"b": {"a"},
				"c": {"a"},
				"d": {"b", "c"},
			},
		},
		{
			name: "missing dependency",
			deps: map[string][]string{
				"a": {"ghost"},
			},
			wantErrs: 1,
		},
		{
			name: "two missing dependencies",
			deps: map[string][]string{
				"a": {"ghost"},
				"b": {"phantom"},
			},
			wantErrs: 2,
		},
		{
			name: "direct cycle",
			deps: map[string][]string{
				"a": {"b"},
				"b": {"a"},
			},
			wantErrs:  1,
			wantCycle: true,
		},
		{
			name: "self cycle",
			deps: map[string][]string{
				"a": {"a"},
			},
			wantErrs:  1,
			wantCycle: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			errs := buildWorkflow(tt.deps).Validate()
			assert.Len(t, errs, tt.wantErrs)

			if tt.wantCycle {
				require.NotEmpty(t, errs)
				assert.ErrorIs(t, errs[0], models.ErrCycleDetected)
			}
		})
	}
}

func TestWorkflowExecutionOrder(t *testing.T) {
	t.Parallel()

	wf := buildWorkflow(map[string][]string{
		"a": nil,
		"b": {"a"},
		"c": {"a"},
		"d": {"b", "c"},
	})

	order, err := wf.ExecutionOrder()
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"a"}, {"b", "c"}, {"d"}}, order)
}

func TestWorkflowExecutionOrderIndependentTasks(t *testing.T) {
	t.Parallel()

	wf := buildWorkflow(map[string][]string{
		"a": nil,
		"b": nil,
		"c": nil,
	})

	order, err := wf.ExecutionOrder()
	require.NoError(t, err)

	require.Len(t, order, 1)
	assert.Equal(t, []string{"a", "b", "c"}, order[0])
}

func TestWorkflowExecutionOrderCycle(t *testing.T) {
	t.Parallel()

	wf := buildWorkflow(map[string][]string{
		"a": {"c"},
		"b": {"a"},
		"c": {"b"},
	})

	_, err := wf.ExecutionOrder()
	assert.ErrorIs(t, err, models.ErrCycleDetected)
}

func TestWorkflowAddTaskReplacesSameID(t *testing.T) {
	t.Parallel()

	wf := models.NewWorkflow("wf-test", "Test Workflow")
	wf.AddTask(&models.Task{ID: "a", Name: "first"})
	wf.AddTask(&models.Task{ID: "a", Name: "second"})

	assert.Equal(t, 1, wf.TaskCount())

	task, ok := wf.Task("a")
	require.True(t, ok)
	assert.Equal(t, "second", task.Name)
}

func TestWorkflowRemoveTaskStripsDependencies(t *testing.T) {
	t.Parallel()

	wf := buildWorkflow(map[string][]string{
		"a": nil,
		"b": {"a"},
		"c": {"a", "b"},
	})

	wf.RemoveTask("a")

	assert.Equal(t, 2, wf.TaskCount())

	_, ok := wf.Task("a")
	assert.False(t, ok)

	b, ok := wf.Task("b")
	require.True(t, ok)
	assert.Empty(t, b.Dependencies)

	c, ok := wf.Task("c")
	require.True(t, ok)
	assert.Equal(t, []string{"b"}, c.Dependencies)

	assert.Empty(t, wf.Validate())
}

func TestWorkflowRemoveUnknownTaskIsNoop(t *testing.T) {
	t.Parallel()

	wf := buildWorkflow(map[string][]string{"a": nil})
	wf.RemoveTask("ghost")

	assert.Equal(t, 1, wf.TaskCount())
}

func TestTaskDependsOn(t *testing.T) {
	t.Parallel()

	task := &models.Task{ID: "b", Name: "b", Dependencies: []string{"a"}}

	assert.True(t, task.DependsOn("a"))
	assert.False(t, task.DependsOn("c"))
}
