// Package gate decides which session events become user-visible alerts and
// builds their payloads.
package gate

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/ccnotify/internal/hook"
	"github.com/joescharf/ccnotify/internal/logging"
	"github.com/joescharf/ccnotify/internal/registry"
)

// Defaults for Config.
const (
	DefaultTitle   = "Claude Code"
	DefaultMaxBody = 200
)

// Config holds the settings that shape alerts. It can be replaced while the
// daemon runs.
type Config struct {
	Title   string
	MaxBody int
	Enabled bool
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{Title: DefaultTitle, MaxBody: DefaultMaxBody, Enabled: true}
}

// Alert is the payload handed to the presentation layer.
type Alert struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Subtitle  string    `json:"subtitle"`
	Body      string    `json:"body"`
	SessionID string    `json:"sessionId"`
	HookType  hook.Type `json:"hookType"`
	CreatedAt time.Time `json:"createdAt"`
}

// Option configures a Gate.
type Option func(*Gate)

// WithHome sets the directory shortened to ~ in subtitles.
func WithHome(home string) Option {
	return func(g *Gate) { g.home = home }
}

// WithClock overrides the alert timestamp source.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.log = l }
}

// WithNotifier adds a destination for fired alerts.
func WithNotifier(n Notifier) Option {
	return func(g *Gate) { g.hub.Add(n) }
}

// Gate evaluates registry results and fans fired alerts out to notifiers.
type Gate struct {
	cfg  atomic.Pointer[Config]
	home string
	now  func() time.Time
	log  *slog.Logger
	hub  *Hub
}

// New creates a Gate.
func New(cfg Config, opts ...Option) *Gate {
	g := &Gate{
		now: time.Now,
		log: logging.Discard(),
		hub: NewHub(),
	}
	for _, o := range opts {
		o(g)
	}
	g.log = g.log.With("component", "gate")
	g.SetConfig(cfg)
	return g
}

// SetConfig replaces the settings. A MaxBody too small to hold "..." or an empty Title
// falls back to the default.
func (g *Gate) SetConfig(cfg Config) {
	if cfg.MaxBody <= len(ellipsis) {
		cfg.MaxBody = DefaultMaxBody
	}
	if cfg.Title == "" {
		cfg.Title = DefaultTitle
	}
	g.cfg.Store(&cfg)
}

// Config returns the current settings.
func (g *Gate) Config() Config {
	return *g.cfg.Load()
}

// Hub returns the notifier fan-out so late subscribers can be attached.
func (g *Gate) Hub() *Hub { return g.hub }

// Evaluate reports whether ev, applied with outcome res, should alert. It
// reads the mute flag from res.Record, the state produced by the same
// mutation, never a value captured earlier.
func (g *Gate) Evaluate(ev hook.Event, res registry.Result) (Alert, bool) {
	cfg := g.Config()
	if !cfg.Enabled || res.Ignored {
		return Alert{}, false
	}
	if !hook.Alerts(ev.HookType) || res.Record.Muted {
		return Alert{}, false
	}

	return Alert{
		ID:        ulid.Make().String(),
		Title:     cfg.Title,
		Subtitle:  ShortenHome(res.Record.Cwd, g.home),
		Body:      Truncate(res.Record.LastMessage, cfg.MaxBody),
		SessionID: res.Record.ID,
		HookType:  ev.HookType,
		CreatedAt: g.now(),
	}, true
}

// Handle evaluates ev and, when eligible, dispatches the alert to every
// notifier. It returns whether an alert fired.
func (g *Gate) Handle(ev hook.Event, res registry.Result) bool {
	alert, ok := g.Evaluate(ev, res)
	if !ok {
		return false
	}
	g.log.Info("alert fired", "session", alert.SessionID, "hook", alert.HookType, "alert", alert.ID)
	g.hub.Notify(alert)
	return true
}
