package storage

import (
	"context"
	"time"

	"github.com/t77yq/promptcron/internal/model"
)

// Store defines the persistence contract for schedules and execution logs.
// Every method is a single atomic statement or transaction; no transaction
// spans a full run.
type Store interface {
	// CreateSchedule inserts a schedule, assigning its id and timestamps
	CreateSchedule(ctx context.Context, schedule *model.Schedule) error

	// GetSchedule retrieves a schedule by id
	GetSchedule(ctx context.Context, id string) (*model.Schedule, error)

	// GetScheduleByName retrieves a schedule by its unique name
	GetScheduleByName(ctx context.Context, name string) (*model.Schedule, error)

	// ResolveSchedule looks a schedule up by id first, then by name
	ResolveSchedule(ctx context.Context, idOrName string) (*model.Schedule, error)

	// ListSchedules returns every schedule ordered by creation time
	ListSchedules(ctx context.Context) ([]*model.Schedule, error)

	// ListEnabledSchedules returns the schedules that should be armed
	ListEnabledSchedules(ctx context.Context) ([]*model.Schedule, error)

	// UpdateSchedule rewrites the definition fields of a schedule
	UpdateSchedule(ctx context.Context, schedule *model.Schedule) error

	// DeleteSchedule removes a schedule together with its logs
	DeleteSchedule(ctx context.Context, id string) error

	// RecordRun bumps run_count or error_count and sets last_run_at
	RecordRun(ctx context.Context, id string, success bool, at time.Time) error

	// SetNextRun stores the derived next run instant; nil clears it
	SetNextRun(ctx context.Context, id string, next *time.Time) error

	// SetEnabled pauses or resumes a schedule
	SetEnabled(ctx context.Context, id string, enabled bool) error

	// CreateLog inserts a log entry in the running state
	CreateLog(ctx context.Context, log *model.ExecutionLog) error

	// CompleteLog moves a running log to a terminal state exactly once
	CompleteLog(ctx context.Context, id string, status model.LogStatus, output, errText *string, at time.Time) error

	// GetLog retrieves a single execution log
	GetLog(ctx context.Context, id string) (*model.ExecutionLog, error)

	// ListLogs returns the most recent logs, optionally for one schedule
	ListLogs(ctx context.Context, scheduleID string, limit int) ([]*model.ExecutionLog, error)

	// DeleteLogsBefore removes logs started before the cutoff
	DeleteLogsBefore(ctx context.Context, before time.Time) (int64, error)

	// Fingerprint returns a cheap digest of the schedule definitions
	Fingerprint(ctx context.Context) (string, error)

	// Close releases the underlying database
	Close() error
}
