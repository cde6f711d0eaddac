package client

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessInfo describes a running daemon process.
type ProcessInfo struct {
	PID     int       `json:"pid"`
	Started time.Time `json:"started"`
	RSS     uint64    `json:"rss"`
	Cmdline string    `json:"cmdline"`
}

// FindDaemonProcess scans the process table for "<exe> daemon run". Only
// the base name of exe is compared, so a daemon launched through a
// different path to the same binary still matches.
func FindDaemonProcess(ctx context.Context, exe string) (int, bool) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, false
	}
	base := filepath.Base(exe)
	for _, p := range procs {
		args, err := p.CmdlineSliceWithContext(ctx)
		if err != nil {
			continue
		}
		if isDaemonCmdline(args, base) {
			return int(p.Pid), true
		}
	}
	return 0, false
}

// isDaemonCmdline reports whether args is "<base> daemon run [flags]".
func isDaemonCmdline(args []string, base string) bool {
	if len(args) < 3 || base == "" {
		return false
	}
	if filepath.Base(args[0]) != base {
		return false
	}
	return args[1] == "daemon" && args[2] == "run"
}

// DescribeProcess returns start time, resident memory and command line for
// pid. Fields that cannot be read are left zero.
func DescribeProcess(ctx context.Context, pid int) (ProcessInfo, error) {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return ProcessInfo{}, err
	}
	info := ProcessInfo{PID: pid}
	if ms, err := p.CreateTimeWithContext(ctx); err == nil {
		info.Started = time.UnixMilli(ms)
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		info.RSS = mem.RSS
	}
	if args, err := p.CmdlineSliceWithContext(ctx); err == nil {
		info.Cmdline = strings.Join(args, " ")
	}
	return info, nil
}
