package cmd

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/joescharf/ccnotify/internal/hook"
)

var (
	sendHook    string
	sendSession string
	sendPID     int
	sendCwd     string
	sendMessage string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a single event to the daemon",
	Long: `Send one event built from flags. Useful for testing and for scripts that
are not Claude Code hooks.

  ccnotify send --hook Stop --session abc --message "done"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendRun(cmd.Context())
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendHook, "hook", "", "Hook type (e.g. Stop, PreToolUse)")
	sendCmd.Flags().StringVar(&sendSession, "session", "", "Session ID")
	sendCmd.Flags().IntVar(&sendPID, "pid", 0, "Session process ID (default: parent of this command)")
	sendCmd.Flags().StringVar(&sendCwd, "cwd", "", "Working directory (default: current directory)")
	sendCmd.Flags().StringVarP(&sendMessage, "message", "m", "", "Message text")
	_ = sendCmd.MarkFlagRequired("hook")
	_ = sendCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(sendCmd)
}

func sendRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if sendHook == "" || sendSession == "" {
		return errors.New("--hook and --session are required")
	}
	pid := sendPID
	if pid == 0 {
		pid = os.Getppid()
	}
	cwd := sendCwd
	if cwd == "" {
		cwd, _ = os.Getwd()
	}

	ctx, cancel := context.WithTimeout(ctx, hookTimeout)
	defer cancel()

	ev := hook.NewEvent(hook.Type(sendHook), sendSession, pid, cwd, sendMessage)
	if err := newSender().Send(ctx, ev); err != nil {
		return err
	}
	ui.VerboseLog("Sent %s for session %s (pid %d)", sendHook, sendSession, pid)
	return nil
}
