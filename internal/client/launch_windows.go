//go:build windows

package client

import "os/exec"

// setDetachAttrs is a no-op on Windows (no Setsid equivalent).
func setDetachAttrs(_ *exec.Cmd) {}
