// Package daemon wires the session registry, liveness monitor, event
// listener, notification gate and control API into one running process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/joescharf/ccnotify/internal/api"
	"github.com/joescharf/ccnotify/internal/gate"
	"github.com/joescharf/ccnotify/internal/hook"
	"github.com/joescharf/ccnotify/internal/listener"
	"github.com/joescharf/ccnotify/internal/liveness"
	"github.com/joescharf/ccnotify/internal/logging"
	"github.com/joescharf/ccnotify/internal/registry"
	"github.com/joescharf/ccnotify/internal/view"
)

// ErrNotRunning is returned when an operation needs a running daemon and
// none is found.
var ErrNotRunning = errors.New("daemon not running")

const shutdownTimeout = 2 * time.Second

// Config holds everything the daemon needs to start.
type Config struct {
	SocketPath        string
	ControlSocketPath string
	// PIDFile is optional.
	PIDFile string

	LivenessInterval time.Duration
	Gate             gate.Config
	// Home is shortened to ~ in alert subtitles and session views.
	Home    string
	Version string

	Logger *slog.Logger
	// ResetLog, if set, is called once the event socket is bound.
	ResetLog func() error
	// Prober overrides the liveness probe. Nil means signal 0.
	Prober liveness.Prober
	// Notifiers receive every fired alert in addition to the log and watchers.
	Notifiers []gate.Notifier
}

// Daemon is one running instance.
type Daemon struct {
	cfg Config
	log *slog.Logger

	reg      *registry.Registry
	gate     *gate.Gate
	monitor  *liveness.Monitor
	events   *listener.Server
	watchers *view.Broadcaster
	control  *api.Server
	pid      *PIDFile

	quit     chan struct{}
	quitOnce sync.Once
}

// New builds a Daemon. Nothing is bound until Run.
func New(cfg Config) *Daemon {
	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}

	d := &Daemon{
		cfg:  cfg,
		log:  log.With("component", "daemon"),
		quit: make(chan struct{}),
	}

	d.reg = registry.New(registry.WithLogger(log))

	gateOpts := []gate.Option{
		gate.WithHome(cfg.Home),
		gate.WithLogger(log),
		gate.WithNotifier(gate.LogNotifier{Log: log.With("component", "notify")}),
	}
	for _, n := range cfg.Notifiers {
		gateOpts = append(gateOpts, gate.WithNotifier(n))
	}
	d.gate = gate.New(cfg.Gate, gateOpts...)

	monOpts := []liveness.Option{
		liveness.WithInterval(cfg.LivenessInterval),
		liveness.WithLogger(log),
	}
	if cfg.Prober != nil {
		monOpts = append(monOpts, liveness.WithProber(cfg.Prober))
	}
	d.monitor = liveness.New(d.reg, monOpts...)

	proj := view.Projector{Home: cfg.Home}
	d.watchers = view.NewBroadcaster(d.reg, proj, log)
	d.gate.Hub().Add(d.watchers)

	d.events = listener.New(cfg.SocketPath, d.handleEvent, log)
	d.control = api.NewServer(d.reg, d.watchers, api.Options{
		Version:   cfg.Version,
		Projector: proj,
		Logger:    log,
		Quit:      d.Quit,
	})

	if cfg.PIDFile != "" {
		d.pid = NewPIDFile(cfg.PIDFile)
	}
	return d
}

// Registry returns the session registry.
func (d *Daemon) Registry() *registry.Registry { return d.reg }

// SetGateConfig replaces the alert settings while running.
func (d *Daemon) SetGateConfig(cfg gate.Config) {
	d.gate.SetConfig(cfg)
	d.log.Info("notification settings reloaded",
		"title", cfg.Title, "max_body", cfg.MaxBody, "enabled", cfg.Enabled)
}

// Quit asks Run to shut down. Safe to call from any goroutine, any number
// of times.
func (d *Daemon) Quit() {
	d.quitOnce.Do(func() { close(d.quit) })
}

// handleEvent applies one decoded frame and lets the gate inspect the
// post-mutation record.
func (d *Daemon) handleEvent(ev hook.Event) {
	if !hook.Known(ev.HookType) {
		d.log.Debug("unknown hook type, treating as working", "hook", ev.HookType, "session", ev.SessionID)
	}
	d.log.Debug("event received",
		"hook", ev.HookType,
		"session", ev.SessionID,
		"pid", ev.PID,
		"delivery", time.Since(ev.EmittedAt()).Round(time.Millisecond),
	)
	res := d.reg.ApplyEvent(ev)
	d.gate.Handle(ev, res)
}

// Run binds both sockets, starts the background loops and blocks until ctx
// is cancelled or Quit is called. Bind failures are returned immediately.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.events.Start(); err != nil {
		return fmt.Errorf("start event listener: %w", err)
	}
	if d.cfg.ResetLog != nil {
		if err := d.cfg.ResetLog(); err != nil {
			d.log.Warn("could not reset log", "error", err)
		}
	}
	if err := d.control.Start(d.cfg.ControlSocketPath); err != nil {
		_ = d.events.Stop()
		return fmt.Errorf("start control API: %w", err)
	}
	if d.pid != nil {
		if err := d.pid.Write(); err != nil {
			d.log.Warn("could not write PID file", "path", d.pid.Path, "error", err)
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.watchers.Start(loopCtx)
	go d.monitor.Run(loopCtx)

	d.log.Info("daemon started",
		"pid", os.Getpid(),
		"version", d.cfg.Version,
		"socket", d.cfg.SocketPath,
		"control", d.cfg.ControlSocketPath,
		"liveness_interval", d.monitor.Interval(),
	)

	select {
	case <-ctx.Done():
		d.log.Info("shutdown requested", "reason", ctx.Err())
	case <-d.quit:
		d.log.Info("quit requested")
	}

	cancel()
	return d.shutdown()
}

// shutdown closes the listener and removes socket paths without waiting on
// in-flight event connections.
func (d *Daemon) shutdown() error {
	var errs []error

	if err := d.events.Stop(); err != nil {
		errs = append(errs, err)
	}

	d.watchers.Close()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.control.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop control API: %w", err))
	}

	if d.pid != nil {
		if err := d.pid.RemoveIfOwned(); err != nil {
			errs = append(errs, fmt.Errorf("remove PID file: %w", err))
		}
	}

	d.log.Info("daemon stopped", "sessions", d.reg.Len())
	return errors.Join(errs...)
}
