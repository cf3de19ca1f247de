package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/t77yq/promptcron/cmd/promptcron/commands"
)

var rootCmd = &cobra.Command{
	Use:   "promptcron",
	Short: "promptcron - schedule prompts with natural language",
	Long: `promptcron turns schedule descriptions in English, Japanese or cron syntax
into timers that run a prompt headlessly or deliver it into a tmux session.

Available commands:
  daemon  - Run the scheduler in the foreground
  mcp     - Serve schedule tools over MCP stdio
  status  - Show whether the daemon is running
  stop    - Stop a running daemon
  parse   - Show how schedule text is interpreted
  add     - Create a schedule
  list    - List schedules
  update  - Change a schedule
  remove  - Delete a schedule
  pause   - Disable a schedule
  resume  - Enable a schedule
  run     - Run a schedule now
  logs    - Show execution logs
  cleanup - Delete old execution logs

Examples:
  promptcron add standup "every weekday at 9:00" "summarize yesterday's commits"
  promptcron add review "毎週金曜日 17時" "review open pull requests" --mode notify
  promptcron parse "every 15 minutes"
  promptcron daemon`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&commands.ConfigFile, "config", "c", "", "Path to config.yaml")

	rootCmd.AddCommand(commands.DaemonCmd)
	rootCmd.AddCommand(commands.MCPCmd)
	rootCmd.AddCommand(commands.StatusCmd)
	rootCmd.AddCommand(commands.StopCmd)
	rootCmd.AddCommand(commands.ParseCmd)
	rootCmd.AddCommand(commands.AddCmd)
	rootCmd.AddCommand(commands.ListCmd)
	rootCmd.AddCommand(commands.UpdateCmd)
	rootCmd.AddCommand(commands.RemoveCmd)
	rootCmd.AddCommand(commands.PauseCmd)
	rootCmd.AddCommand(commands.ResumeCmd)
	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.LogsCmd)
	rootCmd.AddCommand(commands.CleanupCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
