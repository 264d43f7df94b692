// Package mcpapi provides a stateless MCP streamable-HTTP adapter over
// the task service.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/evanschultz/rz/internal/app"
	"github.com/evanschultz/rz/internal/domain"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds the MCP adapter with the task, split, and stats
// tools registered.
func NewHandler(cfg Config, svc *app.Service) (*Handler, error) {
	if svc == nil {
		return nil, fmt.Errorf("task service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerListTool(mcpSrv, svc)
	registerCreateTool(mcpSrv, svc)
	registerActionTools(mcpSrv, svc)
	registerSplitTool(mcpSrv, svc)
	registerStatsTool(mcpSrv, svc)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "rz"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if !strings.HasPrefix(cfg.EndpointPath, "/") {
		cfg.EndpointPath = "/" + cfg.EndpointPath
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerListTool registers the `rz.list_tasks` tool.
func registerListTool(srv *mcpserver.MCPServer, svc *app.Service) {
	srv.AddTool(
		mcp.NewTool(
			"rz.list_tasks",
			mcp.WithDescription("List tasks: the visible working list or every stored task."),
			mcp.WithString("view", mcp.Description("visible or all"), mcp.Enum("visible", "all")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var (
				tasks []domain.Task
				err   error
			)
			if req.GetString("view", "visible") == "all" {
				tasks, err = svc.ListTasks(ctx)
			} else {
				tasks, err = svc.VisibleTasks(ctx)
			}
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"tasks": tasks})
			if err != nil {
				return nil, fmt.Errorf("encode list_tasks result: %w", err)
			}
			return result, nil
		},
	)
}

// registerCreateTool registers the `rz.create_task` tool.
func registerCreateTool(srv *mcpserver.MCPServer, svc *app.Service) {
	srv.AddTool(
		mcp.NewTool(
			"rz.create_task",
			mcp.WithDescription("Append a new task at the end of the working list."),
			mcp.WithString("text", mcp.Required(), mcp.Description("Task text")),
			mcp.WithNumber("resistance", mcp.Description("Optional resistance estimate, 0-10")),
			mcp.WithString("level", mcp.Description("Task level"), mcp.Enum("project", "step", "meta")),
			mcp.WithString("notes", mcp.Description("Free-form notes")),
			mcp.WithString("parent_id", mcp.Description("Optional parent task id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			text, err := req.RequireString("text")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			in := app.CreateTaskInput{
				Text:     text,
				Level:    domain.Level(req.GetString("level", "")),
				Notes:    req.GetString("notes", ""),
				ParentID: req.GetString("parent_id", ""),
			}
			if resistance := req.GetInt("resistance", -1); resistance >= 0 {
				in.Resistance = &resistance
			}
			task, err := svc.CreateTask(ctx, in)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(task)
			if err != nil {
				return nil, fmt.Errorf("encode create_task result: %w", err)
			}
			return result, nil
		},
	)
}

// registerActionTools registers the single-task transition tools.
func registerActionTools(srv *mcpserver.MCPServer, svc *app.Service) {
	actions := []struct {
		name        string
		description string
		run         func(context.Context, string) (domain.Task, error)
	}{
		{"rz.mark_task", "Dot a task as chosen for action.", svc.Mark},
		{"rz.unmark_task", "Clear a task's dot.", svc.Unmark},
		{"rz.reenter_task", "Return a partially-worked task to the end of the list.", svc.Reenter},
		{"rz.complete_task", "Finish a task.", svc.Complete},
		{"rz.archive_task", "Retire a task without finishing it.", svc.Archive},
	}
	for _, action := range actions {
		run := action.run
		toolName := action.name
		srv.AddTool(
			mcp.NewTool(
				toolName,
				mcp.WithDescription(action.description),
				mcp.WithString("id", mcp.Required(), mcp.Description("Task id")),
			),
			func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				taskID, err := req.RequireString("id")
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}
				task, err := run(ctx, taskID)
				if err != nil {
					return toolResultFromError(err), nil
				}
				if task.ID == "" {
					return mcp.NewToolResultError("not_found: task " + taskID), nil
				}
				result, err := mcp.NewToolResultJSON(task)
				if err != nil {
					return nil, fmt.Errorf("encode %s result: %w", toolName, err)
				}
				return result, nil
			},
		)
	}
}

// registerSplitTool registers the `rz.split_task` tool.
func registerSplitTool(srv *mcpserver.MCPServer, svc *app.Service) {
	srv.AddTool(
		mcp.NewTool(
			"rz.split_task",
			mcp.WithDescription("Break a task into new tasks, one per non-blank line."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Task id")),
			mcp.WithString("lines", mcp.Required(), mcp.Description("Newline-separated child task texts")),
			mcp.WithString("mode", mcp.Description("Parent fate"), mcp.Enum("replace", "keep", "archive")),
			mcp.WithBoolean("inherit_notes", mcp.Description("Copy the parent's notes onto each child")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			taskID, err := req.RequireString("id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			lines, err := req.RequireString("lines")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			result, err := svc.Split(ctx, app.SplitInput{
				TaskID:       taskID,
				Lines:        strings.Split(lines, "\n"),
				Mode:         domain.SplitMode(req.GetString("mode", "")),
				InheritNotes: req.GetBool("inherit_notes", false),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			if result.Parent.ID == "" {
				return mcp.NewToolResultError("not_found: task " + taskID), nil
			}
			out, err := mcp.NewToolResultJSON(result)
			if err != nil {
				return nil, fmt.Errorf("encode split_task result: %w", err)
			}
			return out, nil
		},
	)
}

// registerStatsTool registers the `rz.get_day_stats` tool.
func registerStatsTool(srv *mcpserver.MCPServer, svc *app.Service) {
	srv.AddTool(
		mcp.NewTool(
			"rz.get_day_stats",
			mcp.WithDescription("Return scan, mark, and minute counters for one day."),
			mcp.WithString("day", mcp.Description("UTC date YYYY-MM-DD, defaults to today")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			day := strings.TrimSpace(req.GetString("day", ""))
			var (
				stats domain.DayStats
				err   error
			)
			if day == "" {
				stats, err = svc.TodayStats(ctx)
			} else {
				stats, err = svc.DayStats(ctx, day)
			}
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(stats)
			if err != nil {
				return nil, fmt.Errorf("encode get_day_stats result: %w", err)
			}
			return result, nil
		},
	)
}

// toolResultFromError maps service errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, app.ErrNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	case errors.Is(err, domain.ErrEmptyText),
		errors.Is(err, domain.ErrEmptySplit),
		errors.Is(err, domain.ErrInvalidLevel),
		errors.Is(err, domain.ErrInvalidResistance),
		errors.Is(err, domain.ErrInvalidSplitMode):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}
