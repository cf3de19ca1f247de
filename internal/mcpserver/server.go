// Package mcpserver exposes schedule operations as Model Context Protocol
// tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/t77yq/promptcron/internal/model"
	"github.com/t77yq/promptcron/internal/service"
)

// Operations is the schedule surface the tools call into
type Operations interface {
	Parse(text string) model.ParseResult
	Add(ctx context.Context, req service.AddRequest) (*model.Schedule, error)
	List(ctx context.Context) ([]*model.Schedule, error)
	Update(ctx context.Context, idOrName string, update model.ScheduleUpdate) (*model.Schedule, error)
	Remove(ctx context.Context, idOrName string) (*model.Schedule, error)
	Pause(ctx context.Context, idOrName string) (*model.Schedule, error)
	Resume(ctx context.Context, idOrName string) (*model.Schedule, error)
	Run(ctx context.Context, idOrName string, dry bool) (*model.RunReport, error)
	Logs(ctx context.Context, idOrName string, limit int) ([]*model.ExecutionLog, error)
	Cleanup(ctx context.Context, days int) (int64, error)
}

// MCPServer wraps the schedule operations and exposes them via MCP
type MCPServer struct {
	logger *zap.Logger
	ops    Operations
	server *server.MCPServer
}

// New creates a new MCP server with every schedule tool registered
func New(ops Operations, version string, logger *zap.Logger) *MCPServer {
	s := &MCPServer{
		logger: logger.Named("mcp"),
		ops:    ops,
		server: server.NewMCPServer(
			"promptcron",
			version,
			server.WithToolCapabilities(true),
		),
	}
	s.registerTools()
	return s
}

// Serve blocks serving MCP over stdin/stdout
func (s *MCPServer) Serve() error {
	s.logger.Info("Serving MCP over stdio")
	return server.ServeStdio(s.server)
}

// registerTools registers all MCP tools for schedule operations
func (s *MCPServer) registerTools() {
	s.server.AddTool(mcp.NewTool("schedule_add",
		mcp.WithDescription("Create a schedule from natural language (English or Japanese) or a cron expression"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Unique schedule name"),
		),
		mcp.WithString("schedule",
			mcp.Required(),
			mcp.Description(`When to run, e.g. "every day at 9:00", "毎週月曜日 10時", "in 30 minutes" or "0 9 * * 1-5"`),
		),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.Description("Prompt to execute"),
		),
		mcp.WithString("mode",
			mcp.Description("headless (spawn a new process) or notify (send into a tmux session)"),
		),
		mcp.WithString("tmux_target",
			mcp.Description("tmux pane for notify mode, e.g. claude:0.0"),
		),
		mcp.WithString("working_directory",
			mcp.Description("Absolute directory to run in"),
		),
		mcp.WithString("description",
			mcp.Description("Free-form description"),
		),
	), s.handleAdd)

	s.server.AddTool(mcp.NewTool("schedule_list",
		mcp.WithDescription("List every schedule with its next run time"),
	), s.handleList)

	s.server.AddTool(mcp.NewTool("schedule_update",
		mcp.WithDescription("Change fields of an existing schedule"),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Schedule id or name"),
		),
		mcp.WithString("name", mcp.Description("New name")),
		mcp.WithString("schedule", mcp.Description("New schedule text")),
		mcp.WithString("prompt", mcp.Description("New prompt")),
		mcp.WithString("mode", mcp.Description("headless or notify")),
		mcp.WithString("tmux_target", mcp.Description("New tmux pane")),
		mcp.WithString("working_directory", mcp.Description("New absolute directory")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithBoolean("enabled", mcp.Description("Enable or disable the schedule")),
	), s.handleUpdate)

	s.server.AddTool(mcp.NewTool("schedule_remove",
		mcp.WithDescription("Delete a schedule and its logs"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Schedule id or name")),
	), s.handleRemove)

	s.server.AddTool(mcp.NewTool("schedule_pause",
		mcp.WithDescription("Disable a schedule"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Schedule id or name")),
	), s.handlePause)

	s.server.AddTool(mcp.NewTool("schedule_resume",
		mcp.WithDescription("Enable a paused schedule"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Schedule id or name")),
	), s.handleResume)

	s.server.AddTool(mcp.NewTool("schedule_run",
		mcp.WithDescription("Run a schedule now, or preview what it would execute"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Schedule id or name")),
		mcp.WithBoolean("dry_run", mcp.Description("Only report what would be executed (default: false)")),
	), s.handleRun)

	s.server.AddTool(mcp.NewTool("schedule_logs",
		mcp.WithDescription("Show recent execution logs"),
		mcp.WithString("id", mcp.Description("Schedule id or name; all schedules when omitted")),
		mcp.WithNumber("limit", mcp.Description(fmt.Sprintf("Maximum entries (default: %d)", service.DefaultLogLimit))),
	), s.handleLogs)

	s.server.AddTool(mcp.NewTool("schedule_cleanup",
		mcp.WithDescription("Delete execution logs older than a number of days"),
		mcp.WithNumber("days", mcp.Description(fmt.Sprintf("Retention in days (default: %d)", service.DefaultRetentionDays))),
	), s.handleCleanup)

	s.server.AddTool(mcp.NewTool("schedule_parse",
		mcp.WithDescription("Check how schedule text is interpreted without saving anything"),
		mcp.WithString("schedule", mcp.Required(), mcp.Description("Schedule text to interpret")),
	), s.handleParse)
}

func (s *MCPServer) handleAdd(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := request.RequireString("schedule")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	prompt, err := request.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	schedule, err := s.ops.Add(ctx, service.AddRequest{
		Name:             name,
		Schedule:         text,
		Prompt:           prompt,
		Mode:             request.GetString("mode", ""),
		TmuxTarget:       request.GetString("tmux_target", ""),
		WorkingDirectory: request.GetString("working_directory", ""),
		Description:      request.GetString("description", ""),
	})
	if err != nil {
		return s.failure("add", err), nil
	}
	return jsonResult(schedule)
}

func (s *MCPServer) handleList(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	schedules, err := s.ops.List(ctx)
	if err != nil {
		return s.failure("list", err), nil
	}
	return jsonResult(schedules)
}

func (s *MCPServer) handleUpdate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args := request.GetArguments()
	update := model.ScheduleUpdate{
		Name:             optionalString(args, "name"),
		Description:      optionalString(args, "description"),
		ScheduleText:     optionalString(args, "schedule"),
		Prompt:           optionalString(args, "prompt"),
		WorkingDirectory: optionalString(args, "working_directory"),
		TmuxTarget:       optionalString(args, "tmux_target"),
	}
	if mode := optionalString(args, "mode"); mode != nil {
		m := model.ExecutionMode(*mode)
		update.Mode = &m
	}
	if v, ok := args["enabled"].(bool); ok {
		update.Enabled = &v
	}

	schedule, err := s.ops.Update(ctx, id, update)
	if err != nil {
		return s.failure("update", err), nil
	}
	return jsonResult(schedule)
}

func (s *MCPServer) handleRemove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.byID(ctx, request, "remove", s.ops.Remove)
}

func (s *MCPServer) handlePause(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.byID(ctx, request, "pause", s.ops.Pause)
}

func (s *MCPServer) handleResume(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.byID(ctx, request, "resume", s.ops.Resume)
}

func (s *MCPServer) byID(ctx context.Context, request mcp.CallToolRequest, op string,
	fn func(context.Context, string) (*model.Schedule, error)) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	schedule, err := fn(ctx, id)
	if err != nil {
		return s.failure(op, err), nil
	}
	return jsonResult(schedule)
}

func (s *MCPServer) handleRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	report, err := s.ops.Run(ctx, id, request.GetBool("dry_run", false))
	if err != nil {
		return s.failure("run", err), nil
	}
	return jsonResult(report)
}

func (s *MCPServer) handleLogs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logs, err := s.ops.Logs(ctx, request.GetString("id", ""), request.GetInt("limit", service.DefaultLogLimit))
	if err != nil {
		return s.failure("logs", err), nil
	}
	return jsonResult(logs)
}

func (s *MCPServer) handleCleanup(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	days := request.GetInt("days", service.DefaultRetentionDays)
	deleted, err := s.ops.Cleanup(ctx, days)
	if err != nil {
		return s.failure("cleanup", err), nil
	}
	return jsonResult(map[string]interface{}{
		"deleted": deleted,
		"days":    days,
	})
}

func (s *MCPServer) handleParse(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("schedule")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := s.ops.Parse(text)
	if !result.Success {
		res, err := jsonResult(result)
		if err != nil {
			return nil, err
		}
		res.IsError = true
		return res, nil
	}
	return jsonResult(result)
}

// failure renders an operation error with its hints
func (s *MCPServer) failure(op string, err error) *mcp.CallToolResult {
	s.logger.Warn("Tool call failed", zap.String("operation", op), zap.Error(err))

	msg := fmt.Sprintf("Failed to %s schedule: %v", op, err)
	if hint := errors.FlattenHints(err); hint != "" {
		msg += "\nHint: " + hint
	}
	return mcp.NewToolResultError(msg)
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func optionalString(args map[string]any, key string) *string {
	v, ok := args[key].(string)
	if !ok {
		return nil
	}
	return &v
}
