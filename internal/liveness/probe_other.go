//go:build !unix

package liveness

import (
	"github.com/shirou/gopsutil/v3/process"
)

// SignalProber falls back to gopsutil where kill(2) is unavailable. Errors
// count as alive.
type SignalProber struct{}

// Alive reports whether pid still names a process.
func (SignalProber) Alive(pid int) bool {
	if pid <= 0 {
		return true
	}
	exists, err := process.PidExists(int32(pid))
	if err != nil {
		return true
	}
	return exists
}
