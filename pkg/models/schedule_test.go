package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/forgeops/automaton/pkg/models"
)

func TestScheduleValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		schedule models.Schedule
		wantErr  bool
	}{
		{
			name:     "every five minutes",
			schedule: models.Schedule{Name: "five", CronExpression: "*/5 * * * *"},
		},
		{
			name:     "daily at midnight",
			schedule: models.Schedule{Name: "daily", CronExpression: "0 0 * * *"},
		},
		{
			name:     "missing name",
			schedule: models.Schedule{CronExpression: "* * * * *"},
			wantErr:  true,
		},
		{
			name:     "missing expression",
			schedule: models.Schedule{Name: "empty"},
			wantErr:  true,
		},
		{
			name:     "malformed expression",
			schedule: models.Schedule{Name: "bad", CronExpression: "not a cron"},
			wantErr:  true,
		},
		{
			name:     "too many fields",
			schedule: models.Schedule{Name: "six", CronExpression: "* * * * * *"},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.schedule.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWorkflowResultDeriveStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		statuses []models.TaskStatus
		want     models.WorkflowStatus
	}{
		{
			name:     "all completed",
			statuses: []models.TaskStatus{models.TaskStatusCompleted, models.TaskStatusCompleted},
			want:     models.WorkflowStatusCompleted,
		},
		{
			name:     "failure wins over completed",
			statuses: []models.TaskStatus{models.TaskStatusCompleted, models.TaskStatusFailed},
			want:     models.WorkflowStatusFailed,
		},
		{
			name:     "cancelled wins over failure",
			statuses: []models.TaskStatus{models.TaskStatusFailed, models.TaskStatusCancelled},
			want:     models.WorkflowStatusCancelled,
		},
		{
			name:     "skipped alone does not fail the run",
			statuses: []models.TaskStatus{models.TaskStatusCompleted, models.TaskStatusSkipped},
			want:     models.WorkflowStatusCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := &models.WorkflowResult{TaskResults: make(map[string]models.TaskResult)}
			for i, status := range tt.statuses {
				id := string(rune('a' + i))
				result.TaskResults[id] = models.TaskResult{TaskID: id, Status: status}
			}

			assert.Equal(t, tt.want, result.DeriveStatus())
		})
	}
}

func TestTaskResultDuration(t *testing.T) {
	t.Parallel()

	start := time.Now().UTC()
	result := models.TaskResult{StartedAt: start, CompletedAt: start.Add(250 * time.Millisecond)}

	assert.Equal(t, 250*time.Millisecond, result.Duration())
}
