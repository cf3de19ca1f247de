package scheduler

import "errors"

var (
	// ErrInvalidCronExpression is returned when a schedule cannot be armed
	ErrInvalidCronExpression = errors.New("invalid cron expression")

	// ErrNotRunning is returned when a reload is requested on a stopped scheduler
	ErrNotRunning = errors.New("scheduler is not running")
)
