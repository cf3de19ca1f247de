package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/t77yq/promptcron/internal/cronspec"
	"github.com/t77yq/promptcron/internal/events"
	"github.com/t77yq/promptcron/internal/model"
	"github.com/t77yq/promptcron/internal/notifier"
	"github.com/t77yq/promptcron/internal/storage"
)

// Dispatcher performs the side effect of a run
type Dispatcher interface {
	Dispatch(ctx context.Context, schedule *model.Schedule) model.DispatchResult
	Preview(schedule *model.Schedule) model.RunPreview
}

// Notifier reports run outcomes to the user
type Notifier interface {
	Notify(ctx context.Context, n *notifier.Notification)
}

// RunPublisher announces run outcomes to other processes
type RunPublisher interface {
	PublishRunCompleted(ctx context.Context, event events.RunCompleted) error
}

// Config defines configuration for the scheduler
type Config struct {
	Location     *time.Location
	PollInterval time.Duration
	// WatchPath is the database file whose changes prompt an early check
	WatchPath string
}

// Snapshot describes the armed timer set after a (re)load
type Snapshot struct {
	Active      int       `json:"active_schedules"`
	Fingerprint string    `json:"fingerprint"`
	LoadedAt    time.Time `json:"loaded_at"`
}

type activeEntry struct {
	entryID    cron.EntryID
	expression string
}

// Scheduler owns one cron timer per enabled schedule and keeps the set in
// line with storage
type Scheduler struct {
	logger     *zap.Logger
	config     Config
	store      storage.Store
	dispatcher Dispatcher
	notifier   Notifier
	publisher  RunPublisher
	calculator *cronspec.Calculator
	now        func() time.Time

	mu          sync.Mutex
	cron        *cron.Cron
	entries     map[string]activeEntry
	fingerprint string
	running     bool
	startedAt   time.Time
	onReload    func(Snapshot)

	runCtx    context.Context
	cancelRun context.CancelFunc
	loops     sync.WaitGroup
	check     chan struct{}
}

// New creates a new scheduler. Notifier and publisher may be nil.
func New(config Config, store storage.Store, dispatcher Dispatcher, n Notifier, publisher RunPublisher, logger *zap.Logger) *Scheduler {
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}

	return &Scheduler{
		logger:     logger.Named("scheduler"),
		config:     config,
		store:      store,
		dispatcher: dispatcher,
		notifier:   n,
		publisher:  publisher,
		calculator: cronspec.NewCalculator(config.Location),
		now:        time.Now,
		entries:    make(map[string]activeEntry),
		check:      make(chan struct{}, 1),
	}
}

// OnReload registers a callback invoked after every (re)load
func (s *Scheduler) OnReload(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReload = fn
}

// Start loads every enabled schedule, arms its timer and begins watching for
// changes. Starting a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}

	s.cron = cron.New(
		cron.WithLocation(s.config.Location),
		cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)),
		cron.WithChain(cron.Recover(&cronLogger{logger: s.logger.Named("cron")})),
		cron.WithLogger(&cronLogger{logger: s.logger.Named("cron")}),
	)
	s.entries = make(map[string]activeEntry)
	s.runCtx, s.cancelRun = context.WithCancel(context.Background())

	if err := s.loadLocked(ctx); err != nil {
		s.cancelRun()
		s.mu.Unlock()
		return err
	}

	s.cron.Start()
	s.running = true
	s.startedAt = s.now()
	s.mu.Unlock()

	s.loops.Add(1)
	go s.pollLoop(s.runCtx)

	if s.config.WatchPath != "" {
		if err := s.watch(s.runCtx, s.config.WatchPath); err != nil {
			s.logger.Warn("Database watch unavailable, relying on polling", zap.Error(err))
		}
	}

	s.notifyReload()
	s.logger.Info("Scheduler started",
		zap.Int("active_schedules", s.ActiveCount()),
		zap.String("timezone", s.config.Location.String()),
		zap.Duration("poll_interval", s.config.PollInterval))
	return nil
}

// Stop tears down every timer and the background loops. It is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancelRun()
	c := s.cron
	for id, entry := range s.entries {
		c.Remove(entry.entryID)
		delete(s.entries, id)
	}
	s.mu.Unlock()

	s.loops.Wait()
	<-c.Stop().Done()

	s.logger.Info("Scheduler stopped")
}

// StartedAt returns when the scheduler last started
func (s *Scheduler) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// ActiveCount returns the number of armed timers
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// ActiveExpressions maps every armed schedule id to its cron expression
func (s *Scheduler) ActiveExpressions() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.entries))
	for id, entry := range s.entries {
		out[id] = entry.expression
	}
	return out
}

// Trigger asks the poll loop for an immediate fingerprint check
func (s *Scheduler) Trigger() {
	select {
	case s.check <- struct{}{}:
	default:
	}
}

// Reload discards every timer and re-runs the load sequence
func (s *Scheduler) Reload(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}

	for id, entry := range s.entries {
		s.cron.Remove(entry.entryID)
		delete(s.entries, id)
	}
	err := s.loadLocked(ctx)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.notifyReload()
	s.logger.Info("Reloaded schedules", zap.Int("active_schedules", s.ActiveCount()))
	return nil
}

// loadLocked snapshots the fingerprint, then arms every enabled schedule.
// Taking the fingerprint first means an edit racing the load is seen by the
// next check. Caller must hold s.mu.
func (s *Scheduler) loadLocked(ctx context.Context) error {
	fingerprint, err := s.store.Fingerprint(ctx)
	if err != nil {
		return fmt.Errorf("failed to read fingerprint: %w", err)
	}

	schedules, err := s.store.ListEnabledSchedules(ctx)
	if err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}

	for _, schedule := range schedules {
		if err := s.registerLocked(ctx, schedule); err != nil {
			s.logger.Error("Failed to arm schedule",
				zap.String("schedule_id", schedule.ID),
				zap.String("name", schedule.Name),
				zap.String("cron_expression", schedule.CronExpression),
				zap.Error(err))
		}
	}

	s.fingerprint = fingerprint
	return nil
}

// registerLocked arms a timer for the schedule, replacing any stale timer with
// the same id, and refreshes next_run_at. Caller must hold s.mu.
func (s *Scheduler) registerLocked(ctx context.Context, schedule *model.Schedule) error {
	if err := cronspec.Validate(schedule.CronExpression); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCronExpression, err)
	}

	if old, ok := s.entries[schedule.ID]; ok {
		s.cron.Remove(old.entryID)
		delete(s.entries, schedule.ID)
	}

	if schedule.OneShot && s.oneShotExpired(schedule) {
		s.logger.Warn("One-shot schedule missed its run, disabling it",
			zap.String("schedule_id", schedule.ID),
			zap.String("name", schedule.Name),
			zap.String("cron_expression", schedule.CronExpression),
			zap.Timep("next_run", schedule.NextRunAt))
		s.retireOneShot(ctx, schedule.ID)
		return nil
	}

	id := schedule.ID
	entryID, err := s.cron.AddFunc(schedule.CronExpression, func() {
		s.fire(id)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCronExpression, err)
	}
	s.entries[id] = activeEntry{entryID: entryID, expression: schedule.CronExpression}

	next := s.nextRun(schedule.CronExpression)
	if err := s.store.SetNextRun(ctx, id, next); err != nil {
		s.logger.Warn("Failed to store next run",
			zap.String("schedule_id", id),
			zap.Error(err))
	}

	s.logger.Debug("Armed schedule",
		zap.String("schedule_id", id),
		zap.String("name", schedule.Name),
		zap.String("cron_expression", schedule.CronExpression),
		zap.Timep("next_run", next))
	return nil
}

// oneShotExpired reports whether a one-shot's pinned instant has already
// passed. Its fields would otherwise match again on the same date next year.
// The pinned instant is the stored next run, or else the first match after
// the schedule was last written.
func (s *Scheduler) oneShotExpired(schedule *model.Schedule) bool {
	now := s.now()
	if schedule.NextRunAt != nil && !schedule.NextRunAt.After(now) {
		return true
	}

	written := schedule.UpdatedAt.Add(-time.Minute)
	pinned := s.calculator.WithClock(func() time.Time { return written }).Upcoming(schedule.CronExpression)
	return pinned != nil && !pinned.After(now)
}

// retireOneShot disables a one-shot schedule and clears its next run. It
// does not touch the timer set.
func (s *Scheduler) retireOneShot(ctx context.Context, id string) {
	if err := s.store.SetEnabled(ctx, id, false); err != nil {
		s.logger.Error("Failed to disable one-shot schedule", zap.String("schedule_id", id), zap.Error(err))
	}
	if err := s.store.SetNextRun(ctx, id, nil); err != nil {
		s.logger.Error("Failed to clear next run", zap.String("schedule_id", id), zap.Error(err))
	}
}

// unregister retracts the schedule's timer if one is armed
func (s *Scheduler) unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[id]; ok {
		s.cron.Remove(entry.entryID)
		delete(s.entries, id)
		s.logger.Info("Retracted schedule timer", zap.String("schedule_id", id))
	}
}

// nextRun computes the upcoming fire time in the scheduler's location
func (s *Scheduler) nextRun(expr string) *time.Time {
	return s.calculator.WithClock(s.now).Upcoming(expr)
}

func (s *Scheduler) notifyReload() {
	s.mu.Lock()
	fn := s.onReload
	snapshot := Snapshot{
		Active:      len(s.entries),
		Fingerprint: s.fingerprint,
		LoadedAt:    s.now(),
	}
	s.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
}

// pollLoop compares the fingerprint on every tick or explicit trigger
func (s *Scheduler) pollLoop(ctx context.Context) {
	defer s.loops.Done()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkForChanges(ctx)
		case <-s.check:
			s.checkForChanges(ctx)
		}
	}
}

// checkForChanges reloads when the stored fingerprint no longer matches
func (s *Scheduler) checkForChanges(ctx context.Context) {
	fingerprint, err := s.store.Fingerprint(ctx)
	if err != nil {
		s.logger.Warn("Failed to read fingerprint", zap.Error(err))
		return
	}

	s.mu.Lock()
	changed := fingerprint != s.fingerprint
	s.mu.Unlock()
	if !changed {
		return
	}

	s.logger.Info("Detected schedule changes, reloading")
	if err := s.Reload(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("Failed to reload schedules", zap.Error(err))
	}
}
