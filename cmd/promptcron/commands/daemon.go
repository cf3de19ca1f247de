package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/t77yq/promptcron/internal/daemon"
	"github.com/t77yq/promptcron/internal/events"
	"github.com/t77yq/promptcron/internal/scheduler"
)

// DaemonCmd runs the scheduler until interrupted
var DaemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the scheduler in the foreground",
	Long: `Run the scheduler in the foreground.

The daemon arms one timer per enabled schedule, records every run and reloads
when schedules are changed by another process (the CLI or the MCP server).
Send SIGINT or SIGTERM, or run "promptcron stop", to shut it down.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return withApp(ctx, runDaemon)
	},
}

// StatusCmd reports whether the daemon is running
var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the daemon is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")

		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			status, err := a.supervisor.Status(ctx)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(status)
			}

			if !status.Running {
				if status.Stale {
					fmt.Printf("Daemon is not running (stale pid %d)\n", status.PID)
				} else {
					fmt.Println("Daemon is not running")
				}
				return nil
			}

			fmt.Printf("Daemon is running (pid %d)\n", status.PID)
			fmt.Printf("  Active schedules: %d\n", status.ActiveSchedules)
			if status.StartedAt != nil {
				fmt.Printf("  Started: %s\n", status.StartedAt.Format(time.RFC3339))
			}
			if status.UpdatedAt != nil {
				fmt.Printf("  Last reload: %s\n", status.UpdatedAt.Format(time.RFC3339))
			}
			if status.MemoryRSS > 0 {
				fmt.Printf("  Memory: %.1f MiB, CPU: %.1f%%\n", float64(status.MemoryRSS)/(1<<20), status.CPUPercent)
			}
			return nil
		})
	},
}

// StopCmd signals a running daemon to shut down
var StopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")

		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			if err := a.supervisor.Stop(ctx, timeout); err != nil {
				if errors.Is(err, daemon.ErrNotRunning) {
					fmt.Println("Daemon is not running")
					return nil
				}
				return err
			}
			fmt.Println("Daemon stopped")
			return nil
		})
	},
}

func runDaemon(ctx context.Context, a *app) error {
	if err := a.supervisor.Acquire(ctx); err != nil {
		return err
	}
	defer func() {
		if err := a.supervisor.Release(); err != nil {
			a.logger.Warn("Failed to release pid file", zap.Error(err))
		}
	}()

	a.scheduler.OnReload(func(snapshot scheduler.Snapshot) {
		if err := a.supervisor.WriteState(a.scheduler.StartedAt(), snapshot.Active, snapshot.Fingerprint); err != nil {
			a.logger.Warn("Failed to write daemon state", zap.Error(err))
		}
	})

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer a.scheduler.Stop()

	if a.bus != nil {
		err := a.bus.SubscribeScheduleChanged(ctx, func(event events.ScheduleChanged) {
			a.logger.Debug("Received schedule change",
				zap.String("schedule_id", event.ScheduleID),
				zap.String("action", string(event.Action)))
			a.scheduler.Trigger()
		})
		if err != nil {
			a.logger.Warn("Failed to subscribe to schedule changes, relying on polling", zap.Error(err))
		}
	}

	a.logger.Info("Daemon started",
		zap.Int("pid", os.Getpid()),
		zap.Int("active_schedules", a.scheduler.ActiveCount()),
		zap.String("database", a.store.Path()))

	<-ctx.Done()

	a.logger.Info("Shutting down daemon")
	return nil
}

func printJSON(v interface{}) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format JSON: %w", err)
	}
	fmt.Println(string(output))
	return nil
}

func init() {
	StatusCmd.Flags().BoolP("json", "j", false, "Output status as JSON")
	StopCmd.Flags().Duration("timeout", 15*time.Second, "How long to wait for the daemon to exit")
}
