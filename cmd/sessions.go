package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/ccnotify/internal/gate"
	"github.com/joescharf/ccnotify/internal/output"
	"github.com/joescharf/ccnotify/internal/view"
)

// listMessageWidth is the longest last-message shown in the table.
const listMessageWidth = 60

var (
	sessionsJSON    bool
	sessionsWaiting bool
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"ls", "list"},
	Short:   "List tracked sessions",
	Long: `List every session the daemon knows about, idle sessions first.

Waiting sessions are idle and not muted. Durations are the session's age,
its total working time and the length of the current interval.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionsRun(cmd.Context())
	},
}

var waitingCmd = &cobra.Command{
	Use:   "waiting",
	Short: "Print the number of sessions waiting for input",
	RunE: func(cmd *cobra.Command, args []string) error {
		return waitingRun(cmd.Context())
	},
}

func init() {
	sessionsCmd.Flags().BoolVar(&sessionsJSON, "json", false, "Output as JSON")
	sessionsCmd.Flags().BoolVarP(&sessionsWaiting, "waiting", "w", false, "Only sessions waiting for input")
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(waitingCmd)
}

func sessionsRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	snap, err := newControl().Sessions(ctx)
	if err != nil {
		return err
	}
	if sessionsWaiting {
		snap = onlyWaiting(snap)
	}

	if sessionsJSON {
		return ui.JSON(snap)
	}
	return renderSessions(snap)
}

func onlyWaiting(snap view.Snapshot) view.Snapshot {
	out := snap
	out.Sessions = nil
	for _, sv := range snap.Sessions {
		if sv.Waiting() {
			out.Sessions = append(out.Sessions, sv)
		}
	}
	return out
}

func renderSessions(snap view.Snapshot) error {
	if len(snap.Sessions) == 0 {
		ui.Info("No sessions tracked")
		return nil
	}

	table := ui.Table([]string{"Session", "Status", "PID", "Directory", "Age", "Working", "Current", "Last Event", "Last Message"})
	for _, sv := range snap.Sessions {
		table.Append([]string{
			output.Cyan(shortID(sv.ID)),
			sessionStatus(sv),
			strconv.Itoa(sv.PID),
			sv.DisplayCwd,
			output.FormatDuration(sv.Age),
			output.FormatDuration(sv.WorkingTime),
			output.FormatDuration(sv.CurrentInterval),
			output.TimeAgo(sv.LastEventAt),
			oneLine(gate.Truncate(sv.LastMessage, listMessageWidth)),
		})
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintln(ui.Out)
	fmt.Fprintf(ui.Out, "Waiting: %s\n", output.WaitingColor(snap.WaitingCount))
	return nil
}

func sessionStatus(sv view.SessionView) string {
	s := output.StatusColor(string(sv.Status))
	if sv.Muted {
		s += " (muted)"
	}
	return s
}

// shortID keeps the first 8 characters of a session UUID.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func waitingRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	n, err := newControl().WaitingCount(ctx)
	if err != nil {
		return err
	}
	_, err = io.WriteString(ui.Out, strconv.Itoa(n)+"\n")
	return err
}
