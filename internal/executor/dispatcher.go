package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"github.com/t77yq/promptcron/internal/model"
)

// Config defines configuration for the dispatcher
type Config struct {
	Command           string
	Args              []string
	Timeout           time.Duration
	KillGrace         time.Duration
	MaxAttempts       int
	RetryInitialDelay time.Duration
	TmuxSession       string
	TmuxTarget        string
}

const (
	// DefaultTimeout is the ceiling for a single headless run
	DefaultTimeout = 10 * time.Minute
	// DefaultKillGrace is the wait between SIGTERM and SIGKILL
	DefaultKillGrace = 5 * time.Second
	// DefaultTmuxSession names the session notify mode targets
	DefaultTmuxSession = "claude"
)

// Dispatcher executes schedules in headless or notify mode
type Dispatcher struct {
	logger   *zap.Logger
	config   Config
	headless *HeadlessRunner
	session  SessionNotifier
	retry    RetryPolicy
	now      func() time.Time
}

// NewDispatcher creates a new dispatcher. A nil session notifier uses tmux.
func NewDispatcher(config Config, logger *zap.Logger, session SessionNotifier) *Dispatcher {
	if config.Command == "" {
		config.Command = "claude"
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.KillGrace <= 0 {
		config.KillGrace = DefaultKillGrace
	}
	if config.TmuxSession == "" {
		config.TmuxSession = DefaultTmuxSession
	}
	if session == nil {
		session = NewTmuxNotifier(logger)
	}

	return &Dispatcher{
		logger:   logger.Named("dispatcher"),
		config:   config,
		headless: NewHeadlessRunner(logger, config.Command, config.Args, config.Timeout, config.KillGrace),
		session:  session,
		retry: RetryPolicy{
			MaxAttempts: config.MaxAttempts,
			Strategy: &ExponentialBackoff{
				InitialDelay: config.RetryInitialDelay,
				MaxDelay:     time.Minute,
				Multiplier:   2,
			},
		},
		now: time.Now,
	}
}

// Dispatch performs the schedule's action and returns a normalized result.
// It never returns an error; every failure is described by the result.
func (d *Dispatcher) Dispatch(ctx context.Context, schedule *model.Schedule) model.DispatchResult {
	switch schedule.Mode {
	case model.ModeNotify:
		return d.dispatchNotify(ctx, schedule)
	case model.ModeHeadless, "":
		return d.dispatchHeadless(ctx, schedule)
	default:
		return model.DispatchResult{
			Success: false,
			Error:   fmt.Sprintf("unknown execution mode %q", schedule.Mode),
		}
	}
}

func (d *Dispatcher) dispatchHeadless(ctx context.Context, schedule *model.Schedule) model.DispatchResult {
	var result model.DispatchResult
	attempts := d.retry.attempts()

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if !d.retry.wait(ctx, attempt-1) {
				break
			}
			d.logger.Info("Retrying headless run",
				zap.String("schedule_id", schedule.ID),
				zap.Int("attempt", attempt))
		}

		result = d.headless.Run(ctx, schedule.Prompt, schedule.WorkingDirectory)
		result.Attempts = attempt
		if result.Success || result.TimedOut {
			break
		}
	}

	if !result.Success {
		d.logger.Warn("Headless run failed",
			zap.String("schedule_id", schedule.ID),
			zap.Int("attempts", result.Attempts),
			zap.Bool("timed_out", result.TimedOut),
			zap.String("error", result.Error))
	}
	return result
}

func (d *Dispatcher) dispatchNotify(ctx context.Context, schedule *model.Schedule) model.DispatchResult {
	target := d.Target(schedule)
	message := d.composeMessage(schedule)

	if err := d.session.Deliver(ctx, target, message); err != nil {
		d.logger.Warn("Session delivery failed",
			zap.String("schedule_id", schedule.ID),
			zap.String("target", target),
			zap.Error(err))
		return model.DispatchResult{
			Success:  false,
			Error:    fmt.Sprintf("could not reach tmux target %q: %v", target, err),
			Attempts: 1,
		}
	}

	return model.DispatchResult{
		Success:  true,
		Output:   fmt.Sprintf("delivered to %s", target),
		Attempts: 1,
	}
}

func (d *Dispatcher) composeMessage(schedule *model.Schedule) string {
	return fmt.Sprintf("[%s] Scheduled task %q: %s",
		d.now().Format("2006-01-02 15:04:05"), schedule.Name, schedule.Prompt)
}

// Target resolves the session destination: schedule, then config, then the
// default pane of the configured session.
func (d *Dispatcher) Target(schedule *model.Schedule) string {
	if schedule.TmuxTarget != "" {
		return schedule.TmuxTarget
	}
	if d.config.TmuxTarget != "" {
		return d.config.TmuxTarget
	}
	return DefaultTarget(d.config.TmuxSession)
}

// Preview describes the action a run would take without performing it
func (d *Dispatcher) Preview(schedule *model.Schedule) model.RunPreview {
	preview := model.RunPreview{
		ScheduleID:       schedule.ID,
		Name:             schedule.Name,
		Mode:             schedule.Mode,
		WorkingDirectory: schedule.WorkingDirectory,
		CronExpression:   schedule.CronExpression,
		Enabled:          schedule.Enabled,
		NextRunAt:        schedule.NextRunAt,
	}

	switch schedule.Mode {
	case model.ModeNotify:
		preview.Command = shellquote.Join("tmux", "send-keys", "-t", d.Target(schedule), "-l", d.composeMessage(schedule))
	default:
		preview.Command = shellquote.Join(d.headless.Argv(schedule.Prompt)...)
	}
	return preview
}
