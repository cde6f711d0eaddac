package gate

import (
	"log/slog"
	"sync"
)

// Notifier receives fired alerts. Notify must not block for long; the hub
// calls each notifier on its own goroutine.
type Notifier interface {
	Notify(a Alert)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(a Alert)

// Notify calls f(a).
func (f NotifierFunc) Notify(a Alert) { f(a) }

// Hub dispatches alerts to multiple notifiers.
type Hub struct {
	mu        sync.RWMutex
	notifiers []Notifier
}

// NewHub creates a Hub with the given notifiers.
func NewHub(notifiers ...Notifier) *Hub {
	return &Hub{notifiers: notifiers}
}

// Add registers another notifier.
func (h *Hub) Add(n Notifier) {
	h.mu.Lock()
	h.notifiers = append(h.notifiers, n)
	h.mu.Unlock()
}

// Len returns the number of registered notifiers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.notifiers)
}

// Notify sends an alert to all registered notifiers.
func (h *Hub) Notify(a Alert) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, n := range h.notifiers {
		go n.Notify(a)
	}
}

// LogNotifier writes alerts to a logger. The daemon always installs one so
// every alert leaves a trace in daemon.log.
type LogNotifier struct {
	Log *slog.Logger
}

// Notify logs a.
func (n LogNotifier) Notify(a Alert) {
	n.Log.Info("notification",
		"title", a.Title,
		"subtitle", a.Subtitle,
		"body", a.Body,
		"session", a.SessionID,
	)
}
