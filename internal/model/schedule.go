package model

import (
	"fmt"
	"time"
)

// ExecutionMode determines how a schedule fires
type ExecutionMode string

const (
	// ModeHeadless spawns a standalone child process carrying the prompt
	ModeHeadless ExecutionMode = "headless"
	// ModeNotify delivers the prompt into an existing terminal session
	ModeNotify ExecutionMode = "notify"
)

// ParseExecutionMode validates a mode string. Empty input yields the fallback.
func ParseExecutionMode(s string, fallback ExecutionMode) (ExecutionMode, error) {
	switch ExecutionMode(s) {
	case "":
		return fallback, nil
	case ModeHeadless, ModeNotify:
		return ExecutionMode(s), nil
	default:
		return "", fmt.Errorf("invalid execution mode %q (expected %q or %q)", s, ModeHeadless, ModeNotify)
	}
}

// Schedule represents a stored prompt schedule
type Schedule struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Description      string        `json:"description,omitempty"`
	ScheduleText     string        `json:"schedule_text"`
	CronExpression   string        `json:"cron_expression"`
	HumanReadable    string        `json:"human_readable,omitempty"`
	Prompt           string        `json:"prompt"`
	WorkingDirectory string        `json:"working_directory,omitempty"`
	Mode             ExecutionMode `json:"mode"`
	TmuxTarget       string        `json:"tmux_target,omitempty"`
	Enabled          bool          `json:"enabled"`
	OneShot          bool          `json:"one_shot"`

	// Derived and counters
	NextRunAt  *time.Time `json:"next_run_at,omitempty"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	RunCount   int        `json:"run_count"`
	ErrorCount int        `json:"error_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScheduleUpdate carries the partial fields of an edit. Nil means unchanged.
type ScheduleUpdate struct {
	Name             *string
	Description      *string
	ScheduleText     *string
	Prompt           *string
	WorkingDirectory *string
	Mode             *ExecutionMode
	TmuxTarget       *string
	Enabled          *bool
}

// IsEmpty reports whether the update changes nothing
func (u ScheduleUpdate) IsEmpty() bool {
	return u.Name == nil && u.Description == nil && u.ScheduleText == nil &&
		u.Prompt == nil && u.WorkingDirectory == nil && u.Mode == nil &&
		u.TmuxTarget == nil && u.Enabled == nil
}
