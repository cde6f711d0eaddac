package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/joescharf/ccnotify/internal/output"
	"github.com/joescharf/ccnotify/internal/registry"
	"github.com/joescharf/ccnotify/internal/view"
)

var watchJSON bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream session changes and alerts",
	Long: `Follow the daemon's session state live. Prints one line per change and
one per alert until interrupted. With --json each message is written as a
JSON line.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
		defer stop()
		return watchRun(ctx)
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "Write messages as JSON lines")
	rootCmd.AddCommand(watchCmd)
}

func watchRun(ctx context.Context) error {
	var enc *json.Encoder
	if watchJSON {
		enc = json.NewEncoder(ui.Out)
	}
	return newControl().Watch(ctx, func(m view.Message) error {
		if enc != nil {
			return enc.Encode(m)
		}
		return printWatchMessage(ui.Out, m)
	})
}

func printWatchMessage(w io.Writer, m view.Message) error {
	switch {
	case m.Type == view.MessageSnapshot && m.Snapshot != nil:
		_, err := fmt.Fprintln(w, summarizeSnapshot(*m.Snapshot))
		return err
	case m.Type == view.MessageAlert && m.Alert != nil:
		a := m.Alert
		_, err := fmt.Fprintf(w, "%s  %s %s: %s\n",
			a.CreatedAt.Local().Format("15:04:05"), output.Yellow("alert"), a.Subtitle, oneLine(a.Body))
		return err
	}
	return nil
}

func summarizeSnapshot(s view.Snapshot) string {
	counts := map[registry.Status]int{}
	for _, sv := range s.Sessions {
		counts[sv.Status]++
	}
	return fmt.Sprintf("%s  waiting %s  working %d  idle %d  exited %d",
		s.GeneratedAt.Local().Format("15:04:05"),
		output.WaitingColor(s.WaitingCount),
		counts[registry.StatusWorking],
		counts[registry.StatusIdle],
		counts[registry.StatusExited],
	)
}
