package scheduler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/t77yq/promptcron/internal/events"
	"github.com/t77yq/promptcron/internal/model"
	"github.com/t77yq/promptcron/internal/notifier"
	"github.com/t77yq/promptcron/internal/storage"
)

// fire is the cron callback for an armed schedule
func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()

	report := s.execute(ctx, id, TriggerTimer)
	if report.Skipped {
		s.logger.Info("Skipped scheduled run",
			zap.String("schedule_id", id),
			zap.String("reason", report.Reason))
	}
}

// Run executes a schedule immediately, bypassing its timer. A dry run only
// reports what would be executed.
func (s *Scheduler) Run(ctx context.Context, idOrName string, dry bool) (*model.RunReport, error) {
	schedule, err := s.store.ResolveSchedule(ctx, idOrName)
	if err != nil {
		return nil, err
	}

	if dry {
		preview := s.dispatcher.Preview(schedule)
		return &model.RunReport{ScheduleID: schedule.ID, Preview: &preview}, nil
	}

	report := s.execute(ctx, schedule.ID, TriggerManual)
	return &report, nil
}

// execute is the single run sequence shared by timers and manual runs.
// Failures never escape; they end up in the log, the counters and the
// returned report.
func (s *Scheduler) execute(ctx context.Context, id string, trigger Trigger) model.RunReport {
	report := model.RunReport{ScheduleID: id}
	logger := s.logger.With(zap.String("schedule_id", id), zap.String("trigger", string(trigger)))

	schedule, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrScheduleNotFound) {
			report.Skipped = true
			report.Reason = skipReasonMissing
			s.unregister(id)
			return report
		}
		logger.Error("Failed to load schedule for run", zap.Error(err))
		report.Result = &model.DispatchResult{Error: fmt.Sprintf("failed to load schedule: %v", err)}
		return report
	}
	if !schedule.Enabled {
		report.Skipped = true
		report.Reason = skipReasonDisabled
		return report
	}

	entry := &model.ExecutionLog{
		ScheduleID: id,
		Status:     model.LogStatusRunning,
		StartedAt:  s.now(),
	}
	if err := s.store.CreateLog(ctx, entry); err != nil {
		logger.Error("Failed to create execution log", zap.Error(err))
		result := model.DispatchResult{Error: fmt.Sprintf("failed to create execution log: %v", err)}
		s.recordOutcome(ctx, schedule, &result)
		report.Result = &result
		return report
	}
	report.LogID = entry.ID

	logger.Info("Running schedule",
		zap.String("name", schedule.Name),
		zap.String("mode", string(schedule.Mode)),
		zap.String("log_id", entry.ID))

	result := s.dispatcher.Dispatch(ctx, schedule)

	status := model.LogStatusSuccess
	if !result.Success {
		status = model.LogStatusFailed
	}
	var output, errText *string
	if result.Output != "" {
		output = &result.Output
	}
	if result.Error != "" {
		errText = &result.Error
	}
	if err := s.store.CompleteLog(ctx, entry.ID, status, output, errText, s.now()); err != nil {
		logger.Error("Failed to complete execution log",
			zap.String("log_id", entry.ID),
			zap.Error(err))
	}

	s.recordOutcome(ctx, schedule, &result)
	s.publish(ctx, schedule, entry.ID, &result)

	logger.Info("Finished schedule run",
		zap.String("log_id", entry.ID),
		zap.Bool("success", result.Success),
		zap.Bool("timed_out", result.TimedOut),
		zap.Int("attempts", result.Attempts))

	report.Result = &result
	return report
}

// recordOutcome updates counters, next run and one-shot state, then tells
// the user
func (s *Scheduler) recordOutcome(ctx context.Context, schedule *model.Schedule, result *model.DispatchResult) {
	logger := s.logger.With(zap.String("schedule_id", schedule.ID))

	if err := s.store.RecordRun(ctx, schedule.ID, result.Success, s.now()); err != nil {
		logger.Error("Failed to record run", zap.Error(err))
	}

	if schedule.OneShot {
		s.retireOneShot(ctx, schedule.ID)
		s.unregister(schedule.ID)
	} else if err := s.store.SetNextRun(ctx, schedule.ID, s.nextRun(schedule.CronExpression)); err != nil {
		logger.Error("Failed to store next run", zap.Error(err))
	}

	s.notify(ctx, schedule, result)
}

func (s *Scheduler) notify(ctx context.Context, schedule *model.Schedule, result *model.DispatchResult) {
	if s.notifier == nil {
		return
	}
	// In notify mode the delivered message already is the notification
	if result.Success && schedule.Mode == model.ModeNotify {
		return
	}

	note := &notifier.Notification{
		Title:    fmt.Sprintf("promptcron: %s", schedule.Name),
		Message:  "Scheduled run completed",
		Severity: notifier.SeverityInfo,
	}
	if !result.Success {
		note.Message = fmt.Sprintf("Scheduled run failed: %s", result.Error)
		note.Severity = notifier.SeverityError
	}
	s.notifier.Notify(ctx, note)
}

func (s *Scheduler) publish(ctx context.Context, schedule *model.Schedule, logID string, result *model.DispatchResult) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishRunCompleted(ctx, events.RunCompleted{
		ScheduleID: schedule.ID,
		LogID:      logID,
		Success:    result.Success,
		TimedOut:   result.TimedOut,
		Error:      result.Error,
		Timestamp:  s.now(),
	})
	if err != nil {
		s.logger.Warn("Failed to publish run outcome",
			zap.String("schedule_id", schedule.ID),
			zap.Error(err))
	}
}
