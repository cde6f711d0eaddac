package cmd

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/ccnotify/internal/hook"
)

func TestReadHookEvent_ArgumentWins(t *testing.T) {
	in := `{"session_id":"S1","cwd":"/w","message":"hi","hook_event_name":"Notification"}`

	ev, err := readHookEvent(strings.NewReader(in), "Stop", 42)
	require.NoError(t, err)
	assert.Equal(t, hook.FrameType, ev.Type)
	assert.Equal(t, hook.Stop, ev.HookType)
	assert.Equal(t, "S1", ev.SessionID)
	assert.Equal(t, 42, ev.PID)
	assert.Equal(t, "/w", ev.Cwd)
	assert.Equal(t, "hi", ev.Message)
	assert.NotZero(t, ev.Timestamp)
}

func TestReadHookEvent_HookEventName(t *testing.T) {
	in := `{"session_id":"S1","cwd":"/w","hook_event_name":"PreToolUse","tool_name":"Bash"}`

	ev, err := readHookEvent(strings.NewReader(in), "", 7)
	require.NoError(t, err)
	assert.Equal(t, hook.PreToolUse, ev.HookType)
}

func TestReadHookEvent_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"not json", "nope", "decode hook input"},
		{"no hook type", `{"session_id":"S1"}`, "hook_event_name"},
		{"no session", `{"hook_event_name":"Stop"}`, "session_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readHookEvent(strings.NewReader(tt.in), "", 1)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReadHookEvent_CwdDefaultsToWorkingDir(t *testing.T) {
	ev, err := readHookEvent(strings.NewReader(`{"session_id":"S1","transcript_path":"/t.jsonl"}`), "PreToolUse", 1)
	require.NoError(t, err)
	assert.Empty(t, ev.Message)

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, wd, ev.Cwd)
}

func TestCLILogger(t *testing.T) {
	testEnv(t)
	t.Cleanup(func() { verbose = false })

	verbose = false
	assert.False(t, cliLogger().Enabled(context.Background(), slog.LevelDebug))

	verbose = true
	assert.True(t, cliLogger().Enabled(context.Background(), slog.LevelDebug))
}
