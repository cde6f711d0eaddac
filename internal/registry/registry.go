// Package registry holds the in-memory table of assistant sessions. All
// reads and writes go through a single mutex held only for the duration of
// the operation; callers always receive copies.
package registry

import (
	"cmp"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/joescharf/ccnotify/internal/hook"
)

// Result describes the outcome of ApplyEvent.
type Result struct {
	Record  Record
	Created bool
	// Ignored is true when the event targeted an exited session and was dropped.
	Ignored bool
}

// Target is a session the liveness monitor should probe.
type Target struct {
	ID  string
	PID int
}

// Target returns the probe target for the record.
func (r Record) Target() Target {
	return Target{ID: r.ID, PID: r.PID}
}

// Change is published to subscribers after every mutation.
type Change struct {
	Sessions     []Record
	WaitingCount int
	At           time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source used for arrival timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// Registry is the authoritative session table.
type Registry struct {
	mu      sync.Mutex
	records map[string]*Record

	now func() time.Time
	log *slog.Logger

	subMu   sync.Mutex
	subs    map[int]chan Change
	nextSub int
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		records: make(map[string]*Record),
		now:     time.Now,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		subs:    make(map[int]chan Change),
	}
	for _, o := range opts {
		o(r)
	}
	r.log = r.log.With("component", "registry")
	return r
}

// ApplyEvent creates or updates the record for ev.SessionID. Events for an
// exited session are ignored: the record stays exited until cleared.
func (r *Registry) ApplyEvent(ev hook.Event) Result {
	r.mu.Lock()
	now := r.now()
	status := StatusFor(ev.HookType)

	rec, ok := r.records[ev.SessionID]
	if !ok {
		rec = &Record{
			ID:          ev.SessionID,
			PID:         ev.PID,
			Cwd:         ev.Cwd,
			LastMessage: ev.Message,
			Status:      status,
			CreatedAt:   now,
			LastEventAt: now,
		}
		if status == StatusWorking {
			t := now
			rec.WorkingSince = &t
		}
		r.records[ev.SessionID] = rec
		res := Result{Record: rec.clone(), Created: true}
		r.mu.Unlock()

		r.log.Debug("session created", "session", ev.SessionID, "pid", ev.PID, "status", status)
		r.publish()
		return res
	}

	if rec.Status == StatusExited {
		res := Result{Record: rec.clone(), Ignored: true}
		r.mu.Unlock()
		r.log.Debug("event for exited session ignored", "session", ev.SessionID, "hook", ev.HookType)
		return res
	}

	rec.transition(status, now)
	rec.Cwd = ev.Cwd
	rec.LastMessage = ev.Message
	if now.After(rec.LastEventAt) {
		rec.LastEventAt = now
	}
	res := Result{Record: rec.clone()}
	r.mu.Unlock()

	r.log.Debug("session updated", "session", ev.SessionID, "hook", ev.HookType, "status", status)
	r.publish()
	return res
}

// ToggleMute flips the mute flag of id. It reports false, without error,
// when the session is unknown.
func (r *Registry) ToggleMute(id string) (Record, bool) {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return Record{}, false
	}
	rec.Muted = !rec.Muted
	out := rec.clone()
	r.mu.Unlock()

	r.log.Info("mute toggled", "session", id, "muted", out.Muted)
	r.publish()
	return out, true
}

// ClearExited removes every exited record and returns how many were removed.
func (r *Registry) ClearExited() int {
	r.mu.Lock()
	n := 0
	for id, rec := range r.records {
		if rec.Status == StatusExited {
			delete(r.records, id)
			n++
		}
	}
	r.mu.Unlock()

	if n > 0 {
		r.log.Info("cleared exited sessions", "count", n)
		r.publish()
	}
	return n
}

// MarkExited moves the targeted sessions to exited, crediting any open
// working interval. Sessions already exited, unknown, or now owned by a
// different PID than the target names are skipped. At most one change
// notification is published per call.
func (r *Registry) MarkExited(targets ...Target) int {
	r.mu.Lock()
	now := r.now()
	n := 0
	for _, t := range targets {
		rec, ok := r.records[t.ID]
		if !ok || rec.Status == StatusExited || rec.PID != t.PID {
			continue
		}
		rec.transition(StatusExited, now)
		n++
	}
	r.mu.Unlock()

	if n > 0 {
		r.publish()
	}
	return n
}

// Live returns the sessions that are not exited, for liveness probing.
func (r *Registry) Live() []Target {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Target, 0, len(r.records))
	for _, rec := range r.records {
		if rec.Status != StatusExited {
			out = append(out, rec.Target())
		}
	}
	return out
}

// WaitingCount returns the number of idle, unmuted sessions.
func (r *Registry) WaitingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waitingLocked()
}

func (r *Registry) waitingLocked() int {
	n := 0
	for _, rec := range r.records {
		if rec.Status == StatusIdle && !rec.Muted {
			n++
		}
	}
	return n
}

// Get returns a copy of the record for id.
func (r *Registry) Get(id string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Len returns the number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Snapshot returns copies of all records, idle first, then working, then
// exited, most recently active first within each group.
func (r *Registry) Snapshot() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() []Record {
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.clone())
	}
	slices.SortFunc(out, compareRecords)
	return out
}

func compareRecords(a, b Record) int {
	if c := cmp.Compare(a.Status.rank(), b.Status.rank()); c != 0 {
		return c
	}
	if c := b.LastEventAt.Compare(a.LastEventAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
