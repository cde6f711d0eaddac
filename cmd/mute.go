package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/ccnotify/internal/view"
)

var muteCmd = &cobra.Command{
	Use:   "mute <session-id>",
	Short: "Toggle alerts for a session",
	Long: `Flip the muted flag of a session. A muted session raises no alerts and
is not counted as waiting. Any unique prefix of the session ID works.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return muteRun(cmd.Context(), args[0])
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove exited sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return clearRun(cmd.Context())
	},
}

var quitCmd = &cobra.Command{
	Use:   "quit",
	Short: "Ask the daemon to shut down",
	RunE: func(cmd *cobra.Command, args []string) error {
		return quitRun(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(muteCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(quitCmd)
}

// resolveSessionID expands a prefix to the one matching session ID. An exact
// match always wins.
func resolveSessionID(snap view.Snapshot, prefix string) (string, error) {
	var matches []string
	for _, sv := range snap.Sessions {
		if sv.ID == prefix {
			return sv.ID, nil
		}
		if strings.HasPrefix(sv.ID, prefix) {
			matches = append(matches, sv.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no session matches %q", prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%q matches %d sessions, use more characters", prefix, len(matches))
	}
}

func muteRun(ctx context.Context, prefix string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctl := newControl()
	snap, err := ctl.Sessions(ctx)
	if err != nil {
		return err
	}
	id, err := resolveSessionID(snap, prefix)
	if err != nil {
		return err
	}

	res, err := ctl.ToggleMute(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case !res.Found:
		ui.Warning("Session %s is no longer tracked", id)
	case res.Muted:
		ui.Success("Muted %s", id)
	default:
		ui.Success("Unmuted %s", id)
	}
	return nil
}

func clearRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	n, err := newControl().ClearExited(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		ui.Info("No exited sessions")
		return nil
	}
	ui.Success("Removed %d exited session(s)", n)
	return nil
}

func quitRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := newControl().Quit(ctx); err != nil {
		return err
	}
	ui.Success("Daemon shutting down")
	return nil
}
