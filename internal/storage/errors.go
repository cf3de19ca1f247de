package storage

import "errors"

var (
	// ErrScheduleNotFound is returned when no schedule matches an id or name
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrLogNotFound is returned when no execution log matches an id
	ErrLogNotFound = errors.New("execution log not found")

	// ErrLogNotRunning is returned when completing a log that is already terminal
	ErrLogNotRunning = errors.New("execution log is not running")

	// ErrDuplicateName is returned when a schedule name is already taken
	ErrDuplicateName = errors.New("schedule name already exists")
)
