package service

import "github.com/cockroachdb/errors"

var (
	// ErrInvalidName is returned for an empty schedule name
	ErrInvalidName = errors.New("invalid schedule name")

	// ErrInvalidPrompt is returned for an empty prompt
	ErrInvalidPrompt = errors.New("invalid prompt")

	// ErrInvalidWorkingDirectory is returned when the directory is not an
	// existing absolute directory
	ErrInvalidWorkingDirectory = errors.New("invalid working directory")

	// ErrInvalidMode is returned for an unknown execution mode
	ErrInvalidMode = errors.New("invalid execution mode")

	// ErrNothingToUpdate is returned when an update carries no fields
	ErrNothingToUpdate = errors.New("nothing to update")

	// ErrInvalidRetention is returned for a negative cleanup window
	ErrInvalidRetention = errors.New("invalid retention period")
)
