package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/joescharf/ccnotify/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for Claude Code integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets Claude Code ask the daemon which sessions are waiting, mute a
session or clear exited ones. Configure in Claude Code with:

  {
    "mcpServers": {
      "ccnotify": { "command": "ccnotify", "args": ["mcp"] }
    }
  }

Available tools: ccnotify_list_sessions, ccnotify_waiting_count,
ccnotify_toggle_mute, ccnotify_clear_exited`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return mcp.NewServer(newControl(), buildVersion).ServeStdio(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
