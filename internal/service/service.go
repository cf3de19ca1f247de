// Package service implements the schedule operations exposed to the tool
// surface and the command line.
package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/t77yq/promptcron/internal/cronspec"
	"github.com/t77yq/promptcron/internal/events"
	"github.com/t77yq/promptcron/internal/model"
	"github.com/t77yq/promptcron/internal/parser"
	"github.com/t77yq/promptcron/internal/storage"
)

const (
	// DefaultLogLimit is used when logs are requested without a limit
	DefaultLogLimit = 20

	// DefaultRetentionDays is used when cleanup is requested without a window
	DefaultRetentionDays = 30
)

// Runner executes schedules and reacts to definition changes
type Runner interface {
	Run(ctx context.Context, idOrName string, dry bool) (*model.RunReport, error)
	Trigger()
}

// ChangePublisher announces definition changes to other processes
type ChangePublisher interface {
	PublishScheduleChanged(ctx context.Context, event events.ScheduleChanged) error
}

// Config defines configuration for the service
type Config struct {
	Location    *time.Location
	Locale      parser.Locale
	DefaultMode model.ExecutionMode
}

// Service validates and applies schedule operations
type Service struct {
	logger      *zap.Logger
	store       storage.Store
	runner      Runner
	publisher   ChangePublisher
	parser      *parser.Parser
	calculator  *cronspec.Calculator
	defaultMode model.ExecutionMode
	now         func() time.Time
}

// New creates a new service. The publisher may be nil.
func New(config Config, store storage.Store, runner Runner, publisher ChangePublisher, logger *zap.Logger) *Service {
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.DefaultMode == "" {
		config.DefaultMode = model.ModeHeadless
	}

	return &Service{
		logger:      logger.Named("service"),
		store:       store,
		runner:      runner,
		publisher:   publisher,
		parser:      parser.New(config.Location, config.Locale),
		calculator:  cronspec.NewCalculator(config.Location),
		defaultMode: config.DefaultMode,
		now:         time.Now,
	}
}

// AddRequest carries the fields of a new schedule
type AddRequest struct {
	Name             string
	Schedule         string
	Prompt           string
	Mode             string
	TmuxTarget       string
	WorkingDirectory string
	Description      string
}

// Parse interprets schedule text without storing anything
func (s *Service) Parse(text string) model.ParseResult {
	return s.parser.WithClock(s.now).Parse(text)
}

// Add validates and stores a new schedule. Nothing is written unless every
// check passes.
func (s *Service) Add(ctx context.Context, req AddRequest) (*model.Schedule, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errors.WithHint(ErrInvalidName, "give the schedule a short unique name")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrInvalidPrompt
	}

	mode, err := s.parseMode(req.Mode)
	if err != nil {
		return nil, err
	}

	dir, err := validateWorkingDirectory(req.WorkingDirectory)
	if err != nil {
		return nil, err
	}

	parsed, err := s.parser.WithClock(s.now).Interpret(req.Schedule)
	if err != nil {
		return nil, err
	}

	schedule := &model.Schedule{
		Name:             name,
		Description:      req.Description,
		ScheduleText:     strings.TrimSpace(req.Schedule),
		CronExpression:   parsed.CronExpression,
		HumanReadable:    parsed.HumanReadable,
		Prompt:           req.Prompt,
		WorkingDirectory: dir,
		Mode:             mode,
		TmuxTarget:       strings.TrimSpace(req.TmuxTarget),
		Enabled:          true,
		OneShot:          parsed.OneShot,
	}
	schedule.NextRunAt = s.nextRun(schedule.CronExpression)

	if err := s.store.CreateSchedule(ctx, schedule); err != nil {
		return nil, err
	}

	s.logger.Info("Added schedule",
		zap.String("schedule_id", schedule.ID),
		zap.String("name", schedule.Name),
		zap.String("cron_expression", schedule.CronExpression),
		zap.String("mode", string(schedule.Mode)))

	s.changed(ctx, schedule, events.ActionCreated)
	return schedule, nil
}

// List returns every schedule
func (s *Service) List(ctx context.Context) ([]*model.Schedule, error) {
	return s.store.ListSchedules(ctx)
}

// Get resolves a schedule by id or name
func (s *Service) Get(ctx context.Context, idOrName string) (*model.Schedule, error) {
	return s.store.ResolveSchedule(ctx, idOrName)
}

// Update applies a partial edit. The schedule text is re-parsed only when it
// changed and the directory is re-validated only when it changed.
func (s *Service) Update(ctx context.Context, idOrName string, update model.ScheduleUpdate) (*model.Schedule, error) {
	if update.IsEmpty() {
		return nil, ErrNothingToUpdate
	}

	schedule, err := s.store.ResolveSchedule(ctx, idOrName)
	if err != nil {
		return nil, err
	}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, ErrInvalidName
		}
		schedule.Name = name
	}
	if update.Description != nil {
		schedule.Description = *update.Description
	}
	if update.Prompt != nil {
		if strings.TrimSpace(*update.Prompt) == "" {
			return nil, ErrInvalidPrompt
		}
		schedule.Prompt = *update.Prompt
	}
	if update.Mode != nil {
		mode, err := s.parseMode(string(*update.Mode))
		if err != nil {
			return nil, err
		}
		schedule.Mode = mode
	}
	if update.TmuxTarget != nil {
		schedule.TmuxTarget = strings.TrimSpace(*update.TmuxTarget)
	}
	if update.WorkingDirectory != nil && *update.WorkingDirectory != schedule.WorkingDirectory {
		dir, err := validateWorkingDirectory(*update.WorkingDirectory)
		if err != nil {
			return nil, err
		}
		schedule.WorkingDirectory = dir
	}

	timingChanged := false
	if update.ScheduleText != nil && strings.TrimSpace(*update.ScheduleText) != schedule.ScheduleText {
		parsed, err := s.parser.WithClock(s.now).Interpret(*update.ScheduleText)
		if err != nil {
			return nil, err
		}
		schedule.ScheduleText = strings.TrimSpace(*update.ScheduleText)
		schedule.CronExpression = parsed.CronExpression
		schedule.HumanReadable = parsed.HumanReadable
		schedule.OneShot = parsed.OneShot
		timingChanged = true
	}
	if update.Enabled != nil && *update.Enabled != schedule.Enabled {
		schedule.Enabled = *update.Enabled
		timingChanged = true
	}

	if timingChanged {
		schedule.NextRunAt = nil
		if schedule.Enabled {
			schedule.NextRunAt = s.nextRun(schedule.CronExpression)
		}
	}

	if err := s.store.UpdateSchedule(ctx, schedule); err != nil {
		return nil, err
	}

	s.logger.Info("Updated schedule",
		zap.String("schedule_id", schedule.ID),
		zap.String("name", schedule.Name),
		zap.Bool("timing_changed", timingChanged))

	s.changed(ctx, schedule, events.ActionUpdated)
	return schedule, nil
}

// Remove deletes a schedule and its logs
func (s *Service) Remove(ctx context.Context, idOrName string) (*model.Schedule, error) {
	schedule, err := s.store.ResolveSchedule(ctx, idOrName)
	if err != nil {
		return nil, err
	}

	if err := s.store.DeleteSchedule(ctx, schedule.ID); err != nil {
		return nil, err
	}

	s.logger.Info("Removed schedule",
		zap.String("schedule_id", schedule.ID),
		zap.String("name", schedule.Name))

	s.changed(ctx, schedule, events.ActionDeleted)
	return schedule, nil
}

// Pause disables a schedule
func (s *Service) Pause(ctx context.Context, idOrName string) (*model.Schedule, error) {
	return s.setEnabled(ctx, idOrName, false)
}

// Resume enables a schedule and refreshes its next run
func (s *Service) Resume(ctx context.Context, idOrName string) (*model.Schedule, error) {
	return s.setEnabled(ctx, idOrName, true)
}

func (s *Service) setEnabled(ctx context.Context, idOrName string, enabled bool) (*model.Schedule, error) {
	schedule, err := s.store.ResolveSchedule(ctx, idOrName)
	if err != nil {
		return nil, err
	}

	if err := s.store.SetEnabled(ctx, schedule.ID, enabled); err != nil {
		return nil, err
	}
	schedule.Enabled = enabled

	schedule.NextRunAt = nil
	if enabled {
		schedule.NextRunAt = s.nextRun(schedule.CronExpression)
	}
	if err := s.store.SetNextRun(ctx, schedule.ID, schedule.NextRunAt); err != nil {
		return nil, err
	}

	action := events.ActionPaused
	if enabled {
		action = events.ActionResumed
	}
	s.logger.Info("Changed schedule state",
		zap.String("schedule_id", schedule.ID),
		zap.String("action", string(action)))

	s.changed(ctx, schedule, action)
	return schedule, nil
}

// Run executes a schedule now, or previews it when dry is set
func (s *Service) Run(ctx context.Context, idOrName string, dry bool) (*model.RunReport, error) {
	return s.runner.Run(ctx, idOrName, dry)
}

// Logs returns recent execution logs, for one schedule when idOrName is set
func (s *Service) Logs(ctx context.Context, idOrName string, limit int) ([]*model.ExecutionLog, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}

	scheduleID := ""
	if idOrName != "" {
		schedule, err := s.store.ResolveSchedule(ctx, idOrName)
		if err != nil {
			return nil, err
		}
		scheduleID = schedule.ID
	}

	return s.store.ListLogs(ctx, scheduleID, limit)
}

// Cleanup deletes logs older than the given number of days
func (s *Service) Cleanup(ctx context.Context, days int) (int64, error) {
	if days < 0 {
		return 0, errors.Wrapf(ErrInvalidRetention, "%d days", days)
	}

	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour)
	return s.store.DeleteLogsBefore(ctx, cutoff)
}

func (s *Service) parseMode(raw string) (model.ExecutionMode, error) {
	mode, err := model.ParseExecutionMode(strings.TrimSpace(strings.ToLower(raw)), s.defaultMode)
	if err != nil {
		return "", errors.Mark(errors.WithHint(err, "use headless or notify"), ErrInvalidMode)
	}
	return mode, nil
}

func (s *Service) nextRun(expr string) *time.Time {
	return s.calculator.WithClock(s.now).Upcoming(expr)
}

// changed tells the daemon about a definition change
func (s *Service) changed(ctx context.Context, schedule *model.Schedule, action events.ChangeAction) {
	if s.runner != nil {
		s.runner.Trigger()
	}
	if s.publisher == nil {
		return
	}

	err := s.publisher.PublishScheduleChanged(ctx, events.ScheduleChanged{
		ScheduleID: schedule.ID,
		Name:       schedule.Name,
		Action:     action,
		Timestamp:  s.now(),
	})
	if err != nil {
		s.logger.Warn("Failed to publish schedule change",
			zap.String("schedule_id", schedule.ID),
			zap.Error(err))
	}
}

// validateWorkingDirectory accepts an empty value or an existing absolute
// directory. A leading ~ expands to the home directory.
func validateWorkingDirectory(dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return "", nil
	}

	if dir == "~" || strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(ErrInvalidWorkingDirectory, "cannot expand ~")
		}
		dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
	}

	if !filepath.IsAbs(dir) {
		return "", errors.WithHint(
			errors.Wrapf(ErrInvalidWorkingDirectory, "%q is not absolute", dir),
			"pass an absolute path such as /home/me/project")
	}

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Wrapf(ErrInvalidWorkingDirectory, "%q does not exist", dir)
		}
		return "", errors.Wrapf(ErrInvalidWorkingDirectory, "%q: %v", dir, err)
	}
	if !info.IsDir() {
		return "", errors.Wrapf(ErrInvalidWorkingDirectory, "%q is not a directory", dir)
	}

	return filepath.Clean(dir), nil
}
