// Package client talks to the daemon: it delivers hook events over the
// event socket, starting the daemon on demand, and drives the control API.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/joescharf/ccnotify/internal/hook"
	"github.com/joescharf/ccnotify/internal/logging"
)

// ErrDaemonUnreachable is returned when the daemon cannot be reached, even
// after an automatic launch.
var ErrDaemonUnreachable = errors.New("daemon unreachable")

// DefaultLaunchGrace is how long Send waits after launching the daemon
// before dialing it.
const DefaultLaunchGrace = time.Second

const (
	dialTimeout  = 500 * time.Millisecond
	pollInterval = 50 * time.Millisecond
)

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// WithLaunchGrace sets the wait between launching the daemon and dialing.
func WithLaunchGrace(d time.Duration) SenderOption {
	return func(s *Sender) { s.grace = d }
}

// WithLauncher replaces the function that starts the daemon.
func WithLauncher(launch func() error) SenderOption {
	return func(s *Sender) { s.launch = launch }
}

// WithProcessCheck replaces the process-table lookup used when the socket
// does not answer.
func WithProcessCheck(running func(ctx context.Context) bool) SenderOption {
	return func(s *Sender) { s.running = running }
}

// WithSenderLogger sets the logger.
func WithSenderLogger(l *slog.Logger) SenderOption {
	return func(s *Sender) { s.log = l }
}

// Sender delivers events to the daemon's event socket.
type Sender struct {
	socketPath string
	grace      time.Duration
	launch     func() error
	running    func(ctx context.Context) bool
	log        *slog.Logger
}

// NewSender creates a Sender for socketPath. By default it launches the
// current executable with "daemon run" when no daemon is found.
func NewSender(socketPath string, opts ...SenderOption) *Sender {
	s := &Sender{
		socketPath: socketPath,
		grace:      DefaultLaunchGrace,
		log:        logging.Discard(),
	}
	s.launch = s.launchSelf
	s.running = s.daemonProcessRunning
	for _, o := range opts {
		o(s)
	}
	return s
}

// Probe reports whether something accepts connections on the socket.
func (s *Sender) Probe(ctx context.Context) bool {
	conn, err := s.dial(ctx)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// EnsureDaemon makes sure a daemon is running, launching one if neither the
// socket nor the process table shows it. When a daemon process exists but
// its socket is not answering yet, it waits out the grace period instead.
// It reports whether it launched.
func (s *Sender) EnsureDaemon(ctx context.Context) (bool, error) {
	if s.Probe(ctx) {
		return false, nil
	}
	if s.running(ctx) {
		s.log.Debug("daemon process found but socket not answering", "socket", s.socketPath, "grace", s.grace)
		return false, s.awaitSocket(ctx)
	}

	s.log.Debug("launching daemon", "socket", s.socketPath)
	if err := s.launch(); err != nil {
		return false, fmt.Errorf("launch daemon: %w", err)
	}
	return true, s.awaitSocket(ctx)
}

// awaitSocket polls the socket until it answers or the grace period ends.
// Running out of grace is not an error; the caller's dial reports it.
func (s *Sender) awaitSocket(ctx context.Context) error {
	deadline := time.NewTimer(s.grace)
	defer deadline.Stop()
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return nil
		case <-tick.C:
			if s.Probe(ctx) {
				return nil
			}
		}
	}
}

// Send delivers one event. It is fire-and-forget: the daemon sends no reply.
func (s *Sender) Send(ctx context.Context, ev hook.Event) error {
	frame, err := hook.Encode(ev)
	if err != nil {
		return err
	}

	if _, err := s.EnsureDaemon(ctx); err != nil {
		return err
	}

	conn, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDaemonUnreachable, err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.Write(frame); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	s.log.Debug("event sent", "hook", ev.HookType, "session", ev.SessionID, "bytes", len(frame))
	return nil
}

func (s *Sender) dial(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{Timeout: dialTimeout}
	return d.DialContext(ctx, "unix", s.socketPath)
}

func (s *Sender) launchSelf() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("get executable path: %w", err)
	}
	_, err = LaunchDetached(exe, "daemon", "run")
	return err
}

func (s *Sender) daemonProcessRunning(ctx context.Context) bool {
	exe, err := os.Executable()
	if err != nil {
		return false
	}
	_, found := FindDaemonProcess(ctx, exe)
	return found
}
