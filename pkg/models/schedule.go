package models

import (
	"errors"

	"github.com/robfig/cron/v3"
)

// ErrInvalidSchedule is returned when schedule validation fails.
var ErrInvalidSchedule = errors.New("invalid schedule configuration")

// Schedule is a named cron expression that can be bound to a workflow.
// Uses standard 5-field cron format (minute hour day month weekday).
type Schedule struct {
	Name           string `json:"name"            validate:"required"`
	CronExpression string `json:"cron_expression" validate:"required"`
}

// Validate checks the schedule fields and the cron expression format.
func (s Schedule) Validate() error {
	if s.Name == "" || s.CronExpression == "" {
		return ErrInvalidSchedule
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(s.CronExpression); err != nil {
		return err
	}

	return nil
}

// ScheduleEvent is passed to schedule callbacks when a schedule fires.
type ScheduleEvent struct {
	ScheduleName string         `json:"schedule_name"`
	Data         map[string]any `json:"data,omitempty"`
}
