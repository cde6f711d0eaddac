//go:build unix

package liveness

import (
	"errors"

	"golang.org/x/sys/unix"
)

// SignalProber checks existence with kill(pid, 0), which delivers nothing
// to the target. Only ESRCH means the process is gone; EPERM and any other
// error count as alive.
type SignalProber struct{}

// Alive reports whether pid still names a process.
func (SignalProber) Alive(pid int) bool {
	if pid <= 0 {
		return true
	}
	err := unix.Kill(pid, 0)
	return !errors.Is(err, unix.ESRCH)
}
