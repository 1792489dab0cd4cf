package models

import (
	"errors"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultMaxConsecutiveFailures is the auto-disable threshold applied when a
// schedule does not set its own.
const DefaultMaxConsecutiveFailures = 5

// ErrInvalidSchedule is returned when schedule validation fails.
var ErrInvalidSchedule = errors.New("invalid schedule configuration")

// Schedule binds a cron expression and timezone to a workflow. At most one
// live cron job exists per schedule id; add/update/remove in the scheduler
// atomically replace it.
type Schedule struct {
	ID             string `json:"id"              validate:"required"`
	WorkflowID     string `json:"workflow_id"     validate:"required"`
	CronExpression string `json:"cron_expression" validate:"required"`
	Timezone       string `json:"timezone"`

	Enabled      bool `json:"enabled"`
	AutoDisabled bool `json:"auto_disabled"`

	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`

	TotalRuns           int64 `json:"total_runs"`
	SuccessRuns         int64 `json:"success_runs"`
	FailedRuns          int64 `json:"failed_runs"`
	ConsecutiveFailures int   `json:"consecutive_failures"`

	MaxConsecutiveFailures int `json:"max_consecutive_failures"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSchedule creates an enabled schedule after validating the cron
// expression and timezone. Malformed input fails here, never at fire time.
func NewSchedule(id, workflowID, cronExpression, timezone string) (*Schedule, error) {
	now := time.Now().UTC()
	schedule := &Schedule{
		ID:                     id,
		WorkflowID:             workflowID,
		CronExpression:         cronExpression,
		Timezone:               timezone,
		Enabled:                true,
		MaxConsecutiveFailures: DefaultMaxConsecutiveFailures,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	if err := schedule.Validate(); err != nil {
		return nil, err
	}

	if err := schedule.UpdateNextRunAt(now); err != nil {
		return nil, err
	}

	return schedule, nil
}

// Validate checks the schedule's identity, cron expression (standard
// 5-field format) and IANA timezone name.
func (s *Schedule) Validate() error {
	if s.ID == "" || s.WorkflowID == "" || s.CronExpression == "" {
		return ErrInvalidSchedule
	}

	if _, err := cron.ParseStandard(s.CronExpression); err != nil {
		return err
	}

	if _, err := s.Location(); err != nil {
		return err
	}

	return nil
}

// Location resolves the schedule's timezone, defaulting to UTC.
func (s *Schedule) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}

	return time.LoadLocation(s.Timezone)
}

// UpdateNextRunAt recomputes the next wall-clock fire time in the schedule's
// timezone, relative to the given reference time.
func (s *Schedule) UpdateNextRunAt(reference time.Time) error {
	spec, err := cron.ParseStandard(s.CronExpression)
	if err != nil {
		return err
	}

	loc, err := s.Location()
	if err != nil {
		return err
	}

	next := spec.Next(reference.In(loc))
	s.NextRunAt = &next
	s.UpdatedAt = time.Now().UTC()

	return nil
}

// Runnable reports whether the scheduler should keep a live job for this
// schedule.
func (s *Schedule) Runnable() bool {
	return s.Enabled && !s.AutoDisabled
}

// FailureThreshold returns the consecutive-failure count that auto-disables
// this schedule.
func (s *Schedule) FailureThreshold() int {
	if s.MaxConsecutiveFailures <= 0 {
		return DefaultMaxConsecutiveFailures
	}

	return s.MaxConsecutiveFailures
}
