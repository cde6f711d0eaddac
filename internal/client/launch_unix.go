//go:build !windows

package client

import (
	"os/exec"
	"syscall"
)

// setDetachAttrs detaches the child process into its own session on Unix.
func setDetachAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
