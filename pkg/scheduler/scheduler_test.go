package scheduler_test

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeops/automaton/pkg/models"
	"github.com/forgeops/automaton/pkg/scheduler"
)

func startedScheduler(t *testing.T) *scheduler.Scheduler {
	t.Helper()

	s := scheduler.NewScheduler(slog.Default())
	require.NoError(t, s.Start(t.Context()))
	t.Cleanup(func() { _ = s.Stop() })

	return s
}

func TestAddScheduleRejectsInvalidCron(t *testing.T) {
	t.Parallel()

	s := scheduler.NewScheduler(slog.Default())

	err := s.AddSchedule(t.Context(), models.Schedule{Name: "bad", CronExpression: "whenever"})
	assert.ErrorIs(t, err, models.ErrInvalidSchedule)
}

func TestAddScheduleRegisters(t *testing.T) {
	t.Parallel()

	s := startedScheduler(t)

	require.NoError(t, s.AddSchedule(t.Context(), models.Schedule{
		Name:           "hourly",
		CronExpression: "0 * * * *",
	}))

	schedules := s.Schedules()
	require.Len(t, schedules, 1)
	assert.Equal(t, "hourly", schedules[0].Name)
}

func TestTriggerScheduleUnknown(t *testing.T) {
	t.Parallel()

	s := startedScheduler(t)

	err := s.TriggerSchedule(t.Context(), "ghost", nil)
	assert.ErrorIs(t, err, scheduler.ErrUnknownSchedule)
}

func TestTriggerScheduleInvokesCallback(t *testing.T) {
	t.Parallel()

	s := startedScheduler(t)

	var got models.ScheduleEvent

	s.AddCallback("nightly", func(_ context.Context, event models.ScheduleEvent) error {
		got = event

		return nil
	})

	require.NoError(t, s.TriggerSchedule(t.Context(), "nightly", map[string]any{"source": "manual"}))

	assert.Equal(t, "nightly", got.ScheduleName)
	assert.Equal(t, "manual", got.Data["source"])
}

func TestTriggerSchedulePropagatesCallbackError(t *testing.T) {
	t.Parallel()

	s := startedScheduler(t)

	s.AddCallback("broken", func(context.Context, models.ScheduleEvent) error {
		return errors.New("callback blew up")
	})

	err := s.TriggerSchedule(t.Context(), "broken", nil)
	assert.ErrorContains(t, err, "callback blew up")
}

func TestSubmitJobRunsOnWorker(t *testing.T) {
	t.Parallel()

	s := startedScheduler(t)

	var ran atomic.Bool

	job, err := s.SubmitJob("unit", func(context.Context) error {
		ran.Store(true)

		return nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "unit", job.Name)

	assert.Eventually(t, func() bool { return ran.Load() }, time.Second, 2*time.Millisecond)
}

func TestSubmitJobsRunSequentially(t *testing.T) {
	t.Parallel()

	s := startedScheduler(t)

	var concurrent, highWater atomic.Int32

	for range 5 {
		_, err := s.SubmitJob("serial", func(context.Context) error {
			active := concurrent.Add(1)
			defer concurrent.Add(-1)

			for {
				high := highWater.Load()
				if active <= high || highWater.CompareAndSwap(high, active) {
					break
				}
			}

			time.Sleep(5 * time.Millisecond)

			return nil
		})
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool { return highWater.Load() > 0 }, time.Second, 2*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, highWater.Load(), "one worker drains the queue")
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()

	s := scheduler.NewScheduler(slog.Default())
	require.NoError(t, s.Start(t.Context()))
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
}
