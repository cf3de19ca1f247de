// Package commands implements the promptcron command line.
package commands

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/promptcron/internal/config"
	"github.com/t77yq/promptcron/internal/daemon"
	"github.com/t77yq/promptcron/internal/events"
	"github.com/t77yq/promptcron/internal/executor"
	"github.com/t77yq/promptcron/internal/notifier"
	"github.com/t77yq/promptcron/internal/scheduler"
	"github.com/t77yq/promptcron/internal/service"
	"github.com/t77yq/promptcron/internal/storage"
)

// ConfigFile is set by the root --config flag
var ConfigFile string

// Version is overridden at build time with -ldflags
var Version = "dev"

// app holds every component a command may need
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	store      *storage.SQLiteStore
	bus        *events.Bus
	nc         *nats.Conn
	scheduler  *scheduler.Scheduler
	service    *service.Service
	supervisor *daemon.Supervisor
}

// newApp loads configuration and wires storage, dispatch, events, the
// scheduler and the service together
func newApp() (*app, error) {
	cfg, err := config.Load(ConfigFile)
	if err != nil {
		return nil, err
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	mode, err := cfg.DefaultMode()
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStore(logger, cfg.Storage.Path)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		supervisor: daemon.NewSupervisor(logger, cfg.Daemon.PidFile, cfg.Daemon.StateFile),
	}

	var (
		runPublisher    scheduler.RunPublisher
		changePublisher service.ChangePublisher
	)
	if cfg.Events.NatsURL != "" {
		bus, nc, err := events.Connect(cfg.Events.NatsURL, logger)
		if err != nil {
			logger.Warn("Event bus unavailable, continuing without events",
				zap.String("url", cfg.Events.NatsURL),
				zap.Error(err))
		} else {
			a.bus, a.nc = bus, nc
			runPublisher, changePublisher = bus, bus
		}
	}

	dispatcher := executor.NewDispatcher(executor.Config{
		Command:           cfg.Execution.Command,
		Args:              cfg.Execution.Args,
		Timeout:           cfg.Execution.Timeout,
		KillGrace:         cfg.Execution.KillGrace,
		MaxAttempts:       cfg.Execution.MaxAttempts,
		RetryInitialDelay: cfg.Execution.RetryInitialDelay,
		TmuxSession:       cfg.Tmux.Session,
		TmuxTarget:        cfg.Tmux.Target,
	}, logger, nil)

	n := notifier.New(logger, cfg.Notifications.Enabled)
	command := cfg.Notifications.Command
	if command == "" {
		command = notifier.DefaultDesktopCommand()
	}
	n.AddChannel("desktop", notifier.NewDesktopChannel(command))

	a.scheduler = scheduler.New(scheduler.Config{
		Location:     loc,
		PollInterval: cfg.Daemon.PollInterval,
		WatchPath:    store.Path(),
	}, store, dispatcher, n, runPublisher, logger)

	a.service = service.New(service.Config{
		Location:    loc,
		Locale:      cfg.ResolvedLocale(),
		DefaultMode: mode,
	}, store, a.scheduler, changePublisher, logger)

	return a, nil
}

// Close releases the connection, the database and flushes the logger
func (a *app) Close() {
	if a.nc != nil {
		if err := a.nc.Drain(); err != nil {
			a.logger.Warn("Failed to drain NATS connection", zap.Error(err))
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Failed to close store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// withApp runs fn with a wired app and closes it afterwards
func withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
