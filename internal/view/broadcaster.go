package view

import (
	"context"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/ccnotify/internal/gate"
	"github.com/joescharf/ccnotify/internal/logging"
	"github.com/joescharf/ccnotify/internal/registry"
)

// MessageType tags a watch stream message.
type MessageType string

const (
	MessageSnapshot MessageType = "snapshot"
	MessageAlert    MessageType = "alert"
)

// Message is one item on a watch stream.
type Message struct {
	Type     MessageType `json:"type"`
	Snapshot *Snapshot   `json:"snapshot,omitempty"`
	Alert    *gate.Alert `json:"alert,omitempty"`
}

const watcherBuffer = 16

// Watcher receives projected snapshots and alerts.
type Watcher struct {
	ID string
	ch chan Message
}

// C returns the message channel. It is closed when the watcher is cancelled.
func (w *Watcher) C() <-chan Message { return w.ch }

// Broadcaster projects every registry change and fans it out to watchers.
// It also implements gate.Notifier so alerts reach the same watchers.
type Broadcaster struct {
	src  Source
	proj Projector
	log  *slog.Logger

	mu       sync.Mutex
	watchers map[string]*Watcher
	closed   bool
}

// NewBroadcaster creates a Broadcaster reading from src.
func NewBroadcaster(src Source, proj Projector, log *slog.Logger) *Broadcaster {
	if log == nil {
		log = logging.Discard()
	}
	return &Broadcaster{
		src:      src,
		proj:     proj,
		log:      log.With("component", "view"),
		watchers: make(map[string]*Watcher),
	}
}

// Start subscribes to the source and forwards changes in the background
// until ctx is cancelled. The subscription is in place when Start returns.
func (b *Broadcaster) Start(ctx context.Context) {
	changes, cancel := b.src.Subscribe()
	go func() {
		defer cancel()
		b.forward(ctx, changes)
	}()
}

func (b *Broadcaster) forward(ctx context.Context, changes <-chan registry.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			snap := b.proj.Project(c.Sessions)
			b.broadcast(Message{Type: MessageSnapshot, Snapshot: &snap})
		}
	}
}

// Notify forwards a fired alert to every watcher.
func (b *Broadcaster) Notify(a gate.Alert) {
	b.broadcast(Message{Type: MessageAlert, Alert: &a})
}

// Watch registers a new watcher. Its first message is the current snapshot.
// The returned cancel function is idempotent.
func (b *Broadcaster) Watch() (*Watcher, func()) {
	w := &Watcher{
		ID: ulid.Make().String(),
		ch: make(chan Message, watcherBuffer),
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(w.ch)
		return w, func() {}
	}
	// Projected under mu so a change published meanwhile is delivered after it.
	snap := b.proj.Current(b.src)
	w.ch <- Message{Type: MessageSnapshot, Snapshot: &snap}
	b.watchers[w.ID] = w
	n := len(b.watchers)
	b.mu.Unlock()

	b.log.Debug("watcher added", "watcher", w.ID, "watchers", n)

	var once sync.Once
	return w, func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.watchers[w.ID]; ok {
				delete(b.watchers, w.ID)
				close(w.ch)
			}
			b.mu.Unlock()
			b.log.Debug("watcher removed", "watcher", w.ID)
		})
	}
}

// Close ends every watch stream. Later calls to Watch return a watcher
// whose channel is already closed.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, w := range b.watchers {
		close(w.ch)
		delete(b.watchers, id)
	}
}

// Len returns the number of active watchers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.watchers)
}

// broadcast delivers msg to every watcher without blocking. A full watcher
// loses its oldest queued message.
func (b *Broadcaster) broadcast(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, w := range b.watchers {
		select {
		case w.ch <- msg:
			continue
		default:
		}
		select {
		case <-w.ch:
			b.log.Warn("watcher lagging, dropped oldest message", "watcher", w.ID)
		default:
		}
		select {
		case w.ch <- msg:
		default:
		}
	}
}
