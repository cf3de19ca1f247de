package model

import "time"

// LogStatus represents the state of an execution log.
// running -> success | failed; both terminal.
type LogStatus string

const (
	LogStatusRunning LogStatus = "running"
	LogStatusSuccess LogStatus = "success"
	LogStatusFailed  LogStatus = "failed"
)

// IsTerminal reports whether the status can no longer change
func (s LogStatus) IsTerminal() bool {
	return s == LogStatusSuccess || s == LogStatusFailed
}

// ExecutionLog records a single run of a schedule
type ExecutionLog struct {
	ID          string     `json:"id"`
	ScheduleID  string     `json:"schedule_id"`
	Status      LogStatus  `json:"status"`
	Output      *string    `json:"output,omitempty"`
	Error       *string    `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// DispatchResult is the normalized outcome of an execution
type DispatchResult struct {
	Success  bool   `json:"success"`
	Output   string `json:"output"`
	Error    string `json:"error,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`
	TimedOut bool   `json:"timed_out,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
}

// RunPreview describes what a manual run would execute without running it
type RunPreview struct {
	ScheduleID       string        `json:"schedule_id"`
	Name             string        `json:"name"`
	Mode             ExecutionMode `json:"mode"`
	Command          string        `json:"command"`
	WorkingDirectory string        `json:"working_directory,omitempty"`
	CronExpression   string        `json:"cron_expression"`
	Enabled          bool          `json:"enabled"`
	NextRunAt        *time.Time    `json:"next_run_at,omitempty"`
}

// RunReport is returned by a manual run
type RunReport struct {
	ScheduleID string          `json:"schedule_id"`
	LogID      string          `json:"log_id,omitempty"`
	Skipped    bool            `json:"skipped,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Result     *DispatchResult `json:"result,omitempty"`
	Preview    *RunPreview     `json:"preview,omitempty"`
}
