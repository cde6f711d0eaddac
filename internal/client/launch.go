package client

import (
	"fmt"
	"os/exec"
)

// LaunchDetached starts exe with args in its own session with no standard
// streams, and releases it so it outlives the caller. It returns the child's
// PID.
func LaunchDetached(exe string, args ...string) (int, error) {
	cmd := exec.Command(exe, args...) //nolint:gosec // exe comes from os.Executable
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	setDetachAttrs(cmd)

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", exe, err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("release process: %w", err)
	}
	return pid, nil
}
