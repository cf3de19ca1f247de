package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/t77yq/promptcron/internal/model"
	"github.com/t77yq/promptcron/internal/service"
)

// ParseCmd shows how schedule text is interpreted without saving
var ParseCmd = &cobra.Command{
	Use:   "parse <schedule text>",
	Short: "Show how schedule text is interpreted",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")

		return withApp(cmd.Context(), func(_ context.Context, a *app) error {
			result := a.service.Parse(strings.Join(args, " "))
			if jsonOutput {
				return printJSON(result)
			}
			if !result.Success {
				fmt.Fprintf(os.Stderr, "Error: %s\n", result.Error)
				if len(result.Examples) > 0 {
					fmt.Fprintln(os.Stderr, "Examples:")
					for _, ex := range result.Examples {
						fmt.Fprintf(os.Stderr, "  %s\n", ex)
					}
				}
				return errors.New("could not parse schedule")
			}

			fmt.Printf("Cron:     %s\n", result.CronExpression)
			fmt.Printf("Meaning:  %s\n", result.HumanReadable)
			if result.OneShot {
				fmt.Println("One-shot: yes")
			}
			return nil
		})
	},
}

// AddCmd creates a schedule
var AddCmd = &cobra.Command{
	Use:   "add <name> <schedule text> <prompt>",
	Short: "Create a schedule",
	Example: `  promptcron add standup "every weekday at 9:00" "summarize yesterday's commits"
  promptcron add nightly "0 2 * * *" "run the test suite" --dir ~/src/app
  promptcron add ping "in 30 minutes" "check the deploy" --mode notify`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		mode, _ := flags.GetString("mode")
		target, _ := flags.GetString("tmux-target")
		dir, _ := flags.GetString("dir")
		description, _ := flags.GetString("description")

		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			schedule, err := a.service.Add(ctx, service.AddRequest{
				Name:             args[0],
				Schedule:         args[1],
				Prompt:           args[2],
				Mode:             mode,
				TmuxTarget:       target,
				WorkingDirectory: dir,
				Description:      description,
			})
			if err != nil {
				return withHints(err)
			}
			fmt.Printf("Created schedule %s (%s)\n", schedule.Name, schedule.ID)
			printSchedule(schedule)
			return nil
		})
	},
}

// ListCmd lists every schedule
var ListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List schedules",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")

		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			schedules, err := a.service.List(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(schedules)
			}
			if len(schedules) == 0 {
				fmt.Println("No schedules")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tCRON\tMODE\tSTATE\tNEXT RUN\tRUNS\tERRORS")
			for _, s := range schedules {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
					s.Name, s.CronExpression, s.Mode, state(s), formatTime(s.NextRunAt), s.RunCount, s.ErrorCount)
			}
			return w.Flush()
		})
	},
}

// UpdateCmd changes the fields given as flags
var UpdateCmd = &cobra.Command{
	Use:   "update <id or name>",
	Short: "Change a schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		var update model.ScheduleUpdate

		stringFlag := func(name string) *string {
			if !flags.Changed(name) {
				return nil
			}
			v, _ := flags.GetString(name)
			return &v
		}
		update.Name = stringFlag("name")
		update.ScheduleText = stringFlag("schedule")
		update.Prompt = stringFlag("prompt")
		update.WorkingDirectory = stringFlag("dir")
		update.TmuxTarget = stringFlag("tmux-target")
		update.Description = stringFlag("description")
		if mode := stringFlag("mode"); mode != nil {
			m := model.ExecutionMode(*mode)
			update.Mode = &m
		}

		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			schedule, err := a.service.Update(ctx, args[0], update)
			if err != nil {
				return withHints(err)
			}
			fmt.Printf("Updated schedule %s\n", schedule.Name)
			printSchedule(schedule)
			return nil
		})
	},
}

// RemoveCmd deletes a schedule and its logs
var RemoveCmd = &cobra.Command{
	Use:     "remove <id or name>",
	Aliases: []string{"rm"},
	Short:   "Delete a schedule",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			schedule, err := a.service.Remove(ctx, args[0])
			if err != nil {
				return withHints(err)
			}
			fmt.Printf("Removed schedule %s\n", schedule.Name)
			return nil
		})
	},
}

// PauseCmd disables a schedule
var PauseCmd = &cobra.Command{
	Use:   "pause <id or name>",
	Short: "Disable a schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			schedule, err := a.service.Pause(ctx, args[0])
			if err != nil {
				return withHints(err)
			}
			fmt.Printf("Paused schedule %s\n", schedule.Name)
			return nil
		})
	},
}

// ResumeCmd enables a paused schedule
var ResumeCmd = &cobra.Command{
	Use:   "resume <id or name>",
	Short: "Enable a schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			schedule, err := a.service.Resume(ctx, args[0])
			if err != nil {
				return withHints(err)
			}
			fmt.Printf("Resumed schedule %s, next run %s\n", schedule.Name, formatTime(schedule.NextRunAt))
			return nil
		})
	},
}

// RunCmd executes a schedule immediately
var RunCmd = &cobra.Command{
	Use:   "run <id or name>",
	Short: "Run a schedule now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dry, _ := cmd.Flags().GetBool("dry-run")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			report, err := a.service.Run(ctx, args[0], dry)
			if err != nil {
				return withHints(err)
			}
			if jsonOutput {
				return printJSON(report)
			}

			switch {
			case report.Preview != nil:
				fmt.Printf("Would run: %s\n", report.Preview.Command)
				if report.Preview.WorkingDirectory != "" {
					fmt.Printf("  In: %s\n", report.Preview.WorkingDirectory)
				}
			case report.Skipped:
				fmt.Printf("Skipped: %s\n", report.Reason)
			case report.Result != nil && report.Result.Success:
				fmt.Println(strings.TrimRight(report.Result.Output, "\n"))
			case report.Result != nil:
				return fmt.Errorf("run failed: %s", report.Result.Error)
			}
			return nil
		})
	},
}

// LogsCmd shows recent execution logs
var LogsCmd = &cobra.Command{
	Use:   "logs [id or name]",
	Short: "Show execution logs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		var idOrName string
		if len(args) == 1 {
			idOrName = args[0]
		}

		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			logs, err := a.service.Logs(ctx, idOrName, limit)
			if err != nil {
				return withHints(err)
			}
			if jsonOutput {
				return printJSON(logs)
			}
			if len(logs) == 0 {
				fmt.Println("No logs")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tSTATUS\tSCHEDULE\tDURATION\tERROR")
			for _, l := range logs {
				duration := "-"
				if l.CompletedAt != nil {
					duration = l.CompletedAt.Sub(l.StartedAt).Round(time.Millisecond).String()
				}
				errText := ""
				if l.Error != nil {
					errText = firstLine(*l.Error)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					l.StartedAt.Local().Format(time.DateTime), l.Status, l.ScheduleID, duration, errText)
			}
			return w.Flush()
		})
	},
}

// CleanupCmd deletes old execution logs
var CleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old execution logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")

		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			deleted, err := a.service.Cleanup(ctx, days)
			if err != nil {
				return withHints(err)
			}
			fmt.Printf("Deleted %d log(s) older than %d day(s)\n", deleted, days)
			return nil
		})
	},
}

// withHints appends any attached hints to the error message
func withHints(err error) error {
	if hint := errors.FlattenHints(err); hint != "" {
		return fmt.Errorf("%w\nhint: %s", err, hint)
	}
	return err
}

func printSchedule(s *model.Schedule) {
	fmt.Printf("  Cron:     %s\n", s.CronExpression)
	if s.HumanReadable != "" {
		fmt.Printf("  Meaning:  %s\n", s.HumanReadable)
	}
	fmt.Printf("  Mode:     %s\n", s.Mode)
	fmt.Printf("  State:    %s\n", state(s))
	fmt.Printf("  Next run: %s\n", formatTime(s.NextRunAt))
}

func state(s *model.Schedule) string {
	switch {
	case !s.Enabled:
		return "paused"
	case s.OneShot:
		return "once"
	default:
		return "active"
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func init() {
	ParseCmd.Flags().BoolP("json", "j", false, "Output the result as JSON")

	AddCmd.Flags().String("mode", "", "Execution mode: headless or notify (default from config)")
	AddCmd.Flags().String("tmux-target", "", "tmux pane for notify mode")
	AddCmd.Flags().String("dir", "", "Working directory for headless runs")
	AddCmd.Flags().String("description", "", "Free-form description")

	ListCmd.Flags().BoolP("json", "j", false, "Output schedules as JSON")

	UpdateCmd.Flags().String("name", "", "New name")
	UpdateCmd.Flags().String("schedule", "", "New schedule text")
	UpdateCmd.Flags().String("prompt", "", "New prompt")
	UpdateCmd.Flags().String("mode", "", "New execution mode")
	UpdateCmd.Flags().String("tmux-target", "", "New tmux pane")
	UpdateCmd.Flags().String("dir", "", "New working directory")
	UpdateCmd.Flags().String("description", "", "New description")

	RunCmd.Flags().Bool("dry-run", false, "Show what would run without running it")
	RunCmd.Flags().BoolP("json", "j", false, "Output the report as JSON")

	LogsCmd.Flags().IntP("limit", "n", service.DefaultLogLimit, "Maximum entries")
	LogsCmd.Flags().BoolP("json", "j", false, "Output logs as JSON")

	CleanupCmd.Flags().Int("days", service.DefaultRetentionDays, "Delete logs older than this many days")
}
