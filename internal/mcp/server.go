package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/ccnotify/internal/api"
	"github.com/joescharf/ccnotify/internal/view"
)

// Daemon is the subset of the control client the tools need.
type Daemon interface {
	Sessions(ctx context.Context) (view.Snapshot, error)
	WaitingCount(ctx context.Context) (int, error)
	ToggleMute(ctx context.Context, id string) (api.MuteResponse, error)
	ClearExited(ctx context.Context) (int, error)
}

// Server exposes the running daemon's session state as MCP tools.
type Server struct {
	daemon  Daemon
	version string
}

// NewServer creates the MCP server wrapper.
func NewServer(d Daemon, version string) *Server {
	return &Server{daemon: d, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("ccnotify", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listSessionsTool())
	srv.AddTool(s.waitingCountTool())
	srv.AddTool(s.toggleMuteTool())
	srv.AddTool(s.clearExitedTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.MCPServer())
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

type sessionOut struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	Waiting         bool   `json:"waiting"`
	Muted           bool   `json:"muted"`
	PID             int    `json:"pid"`
	Cwd             string `json:"cwd"`
	LastMessage     string `json:"last_message"`
	AgeSeconds      int64  `json:"age_seconds"`
	WorkingSeconds  int64  `json:"working_seconds"`
	IntervalSeconds int64  `json:"interval_seconds"`
}

// ccnotify_list_sessions
func (s *Server) listSessionsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ccnotify_list_sessions",
		mcp.WithDescription("List tracked assistant sessions, idle sessions first. Returns JSON with sessions and waiting_count."),
		mcp.WithString("status", mcp.Description("Filter by status: working, idle or exited")),
		mcp.WithBoolean("waiting_only", mcp.Description("Only sessions that are idle and not muted")),
	)
	return tool, s.handleListSessions
}

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := request.GetString("status", "")
	waitingOnly := request.GetBool("waiting_only", false)

	snap, err := s.daemon.Sessions(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list sessions: %v", err)), nil
	}

	out := make([]sessionOut, 0, len(snap.Sessions))
	for _, sv := range snap.Sessions {
		if status != "" && string(sv.Status) != status {
			continue
		}
		if waitingOnly && !sv.Waiting() {
			continue
		}
		out = append(out, sessionOut{
			ID:              sv.ID,
			Status:          string(sv.Status),
			Waiting:         sv.Waiting(),
			Muted:           sv.Muted,
			PID:             sv.PID,
			Cwd:             sv.DisplayCwd,
			LastMessage:     sv.LastMessage,
			AgeSeconds:      int64(sv.Age.Seconds()),
			WorkingSeconds:  int64(sv.WorkingTime.Seconds()),
			IntervalSeconds: int64(sv.CurrentInterval.Seconds()),
		})
	}

	return jsonResult(map[string]any{
		"sessions":      out,
		"waiting_count": snap.WaitingCount,
	})
}

// ccnotify_waiting_count
func (s *Server) waitingCountTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ccnotify_waiting_count",
		mcp.WithDescription("Number of sessions waiting for input (idle and not muted)."),
	)
	return tool, s.handleWaitingCount
}

func (s *Server) handleWaitingCount(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := s.daemon.WaitingCount(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get waiting count: %v", err)), nil
	}
	return jsonResult(map[string]int{"waiting_count": n})
}

// ccnotify_toggle_mute
func (s *Server) toggleMuteTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ccnotify_toggle_mute",
		mcp.WithDescription("Flip the muted flag of a session. Muted sessions raise no alerts and are not counted as waiting."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
	)
	return tool, s.handleToggleMute
}

func (s *Server) handleToggleMute(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil || id == "" {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}

	res, err := s.daemon.ToggleMute(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to toggle mute: %v", err)), nil
	}
	if !res.Found {
		return mcp.NewToolResultError(fmt.Sprintf("session not found: %s", id)), nil
	}
	return jsonResult(map[string]any{"session_id": id, "muted": res.Muted})
}

// ccnotify_clear_exited
func (s *Server) clearExitedTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ccnotify_clear_exited",
		mcp.WithDescription("Remove every exited session from the registry. Returns the number removed."),
	)
	return tool, s.handleClearExited
}

func (s *Server) handleClearExited(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := s.daemon.ClearExited(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to clear exited sessions: %v", err)), nil
	}
	return jsonResult(map[string]int{"removed": n})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
