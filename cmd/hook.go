package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/joescharf/ccnotify/internal/client"
	"github.com/joescharf/ccnotify/internal/hook"
)

// hookTimeout bounds a hook invocation so the assistant is never blocked
// on a stuck daemon.
const hookTimeout = 5 * time.Second

var hookCmd = &cobra.Command{
	Use:   "hook [hook-type]",
	Short: "Report a Claude Code hook event to the daemon (reads JSON on stdin)",
	Long: `Report a hook event to the daemon, starting it if needed.

Meant to be called from Claude Code's hook configuration. The hook payload
is read from stdin. The hook type comes from the argument, or from the
payload's hook_event_name when no argument is given. The session's process
is taken to be the parent of this command.

  "hooks": {
    "Stop": [{"hooks": [{"type": "command", "command": "ccnotify hook Stop"}]}]
  }`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			return errors.New("no input: 'ccnotify hook' expects the hook JSON on stdin")
		}
		var hookType string
		if len(args) == 1 {
			hookType = args[0]
		}
		ev, err := readHookEvent(os.Stdin, hookType, os.Getppid())
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
		defer cancel()
		return newSender().Send(ctx, ev)
	},
}

func init() {
	rootCmd.AddCommand(hookCmd)
}

// hookInput is the payload Claude Code writes to a hook's stdin.
type hookInput struct {
	SessionID     string `json:"session_id"`
	Cwd           string `json:"cwd"`
	Message       string `json:"message"`
	HookEventName string `json:"hook_event_name"`
}

// readHookEvent decodes the hook payload and builds the event to send.
func readHookEvent(r io.Reader, hookType string, pid int) (hook.Event, error) {
	var in hookInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return hook.Event{}, fmt.Errorf("decode hook input: %w", err)
	}
	if hookType == "" {
		hookType = in.HookEventName
	}
	if hookType == "" {
		return hook.Event{}, errors.New("hook type not given and hook_event_name missing from input")
	}
	if in.SessionID == "" {
		return hook.Event{}, errors.New("session_id missing from hook input")
	}

	if in.Cwd == "" {
		in.Cwd, _ = os.Getwd()
	}

	return hook.NewEvent(hook.Type(hookType), in.SessionID, pid, in.Cwd, in.Message), nil
}

func newSender() *client.Sender {
	return client.NewSender(socketPath(),
		client.WithLaunchGrace(viper.GetDuration("daemon.launch_grace")),
		client.WithLauncher(func() error {
			_, err := launchDaemon()
			return err
		}),
		client.WithSenderLogger(cliLogger()),
	)
}
