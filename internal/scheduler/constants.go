package scheduler

import "time"

const (
	// DefaultPollInterval is how often the change fingerprint is compared
	DefaultPollInterval = 30 * time.Second

	// watchDebounce coalesces bursts of database file events
	watchDebounce = 500 * time.Millisecond

	skipReasonMissing  = "schedule no longer exists"
	skipReasonDisabled = "schedule is paused"
)

// Trigger identifies what started a run
type Trigger string

const (
	TriggerTimer  Trigger = "timer"
	TriggerManual Trigger = "manual"
)
