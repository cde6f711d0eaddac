// Package liveness periodically marks sessions exited when their owning
// process has gone away.
package liveness

import (
	"context"
	"log/slog"
	"time"

	"github.com/joescharf/ccnotify/internal/logging"
	"github.com/joescharf/ccnotify/internal/registry"
)

// DefaultInterval is the sweep period.
const DefaultInterval = 5 * time.Second

// Prober reports whether a process is still running. Implementations must
// fail open: any ambiguous result counts as alive.
type Prober interface {
	Alive(pid int) bool
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(pid int) bool

// Alive calls f(pid).
func (f ProberFunc) Alive(pid int) bool { return f(pid) }

// Store is the subset of the registry the monitor needs.
type Store interface {
	Live() []registry.Target
	MarkExited(targets ...registry.Target) int
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the sweep period.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithProber replaces the default signal-0 prober.
func WithProber(p Prober) Option {
	return func(m *Monitor) { m.prober = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.log = l }
}

// Monitor sweeps the registry on a fixed interval.
type Monitor struct {
	store    Store
	prober   Prober
	interval time.Duration
	log      *slog.Logger
}

// New creates a Monitor for store.
func New(store Store, opts ...Option) *Monitor {
	m := &Monitor{
		store:    store,
		prober:   SignalProber{},
		interval: DefaultInterval,
		log:      logging.Discard(),
	}
	for _, o := range opts {
		o(m)
	}
	m.log = m.log.With("component", "liveness")
	return m
}

// Interval returns the sweep period.
func (m *Monitor) Interval() time.Duration { return m.interval }

// Run sweeps every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.log.Debug("liveness monitor started", "interval", m.interval)
	for {
		select {
		case <-ctx.Done():
			m.log.Debug("liveness monitor stopped")
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep probes every non-exited session once and marks the dead ones exited.
// Probing happens without holding the registry lock. Returns the number of
// sessions that changed.
func (m *Monitor) Sweep() int {
	targets := m.store.Live()

	var dead []registry.Target
	for _, t := range targets {
		if !m.prober.Alive(t.PID) {
			dead = append(dead, t)
			m.log.Info("session process gone, marking exited", "session", t.ID, "pid", t.PID)
		}
	}
	if len(dead) == 0 {
		return 0
	}
	return m.store.MarkExited(dead...)
}
