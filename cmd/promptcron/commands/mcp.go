package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/t77yq/promptcron/internal/mcpserver"
)

// MCPCmd serves the schedule tools to an MCP client over stdio
var MCPCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve schedule tools over MCP stdio",
	Long: `Serve schedule tools over the Model Context Protocol on stdin/stdout.

Schedules created here are picked up by a running daemon through its change
detection. Logs go to stderr so they never corrupt the protocol stream.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(_ context.Context, a *app) error {
			return mcpserver.New(a.service, Version, a.logger).Serve()
		})
	},
}
