// Package view projects registry records into the ordered, display-ready
// form consumed by presentation layers.
package view

import (
	"time"

	"github.com/joescharf/ccnotify/internal/gate"
	"github.com/joescharf/ccnotify/internal/registry"
)

// SessionView is one session as shown to the user.
type SessionView struct {
	ID          string          `json:"id"`
	PID         int             `json:"pid"`
	Cwd         string          `json:"cwd"`
	DisplayCwd  string          `json:"displayCwd"`
	LastMessage string          `json:"lastMessage"`
	Status      registry.Status `json:"status"`
	Muted       bool            `json:"muted"`
	CreatedAt   time.Time       `json:"createdAt"`
	LastEventAt time.Time       `json:"lastEventAt"`

	// Age is the time since the first event for the session.
	Age time.Duration `json:"age"`
	// WorkingTime includes the open interval when the session is working.
	WorkingTime     time.Duration `json:"workingTime"`
	CurrentInterval time.Duration `json:"currentInterval"`
}

// Waiting reports whether the session counts toward the waiting total.
func (s SessionView) Waiting() bool {
	return s.Status == registry.StatusIdle && !s.Muted
}

// Snapshot is the ordered session list plus the waiting count.
type Snapshot struct {
	Sessions     []SessionView `json:"sessions"`
	WaitingCount int           `json:"waitingCount"`
	GeneratedAt  time.Time     `json:"generatedAt"`
}

// Projector turns records into views. The zero value uses time.Now and
// leaves paths unshortened.
type Projector struct {
	Home string
	Now  func() time.Time
}

func (p Projector) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Session projects one record at the current time.
func (p Projector) Session(rec registry.Record) SessionView {
	return p.session(rec, p.now())
}

func (p Projector) session(rec registry.Record, now time.Time) SessionView {
	age := now.Sub(rec.CreatedAt)
	if age < 0 {
		age = 0
	}
	return SessionView{
		ID:              rec.ID,
		PID:             rec.PID,
		Cwd:             rec.Cwd,
		DisplayCwd:      gate.ShortenHome(rec.Cwd, p.Home),
		LastMessage:     rec.LastMessage,
		Status:          rec.Status,
		Muted:           rec.Muted,
		CreatedAt:       rec.CreatedAt,
		LastEventAt:     rec.LastEventAt,
		Age:             age,
		WorkingTime:     rec.WorkingTime(now),
		CurrentInterval: rec.CurrentInterval(now),
	}
}

// Project builds a Snapshot from records already in display order. The
// waiting count is recomputed from the records themselves so it always
// agrees with the list.
func (p Projector) Project(recs []registry.Record) Snapshot {
	now := p.now()
	out := Snapshot{
		Sessions:    make([]SessionView, 0, len(recs)),
		GeneratedAt: now,
	}
	for _, rec := range recs {
		sv := p.session(rec, now)
		if sv.Waiting() {
			out.WaitingCount++
		}
		out.Sessions = append(out.Sessions, sv)
	}
	return out
}

// Source is the registry surface the view layer reads.
type Source interface {
	Snapshot() []registry.Record
	Get(id string) (registry.Record, bool)
	Subscribe() (<-chan registry.Change, func())
}

// Current projects the source's present state.
func (p Projector) Current(src Source) Snapshot {
	return p.Project(src.Snapshot())
}

// Lookup projects a single session, if present.
func (p Projector) Lookup(src Source, id string) (SessionView, bool) {
	rec, ok := src.Get(id)
	if !ok {
		return SessionView{}, false
	}
	return p.Session(rec), true
}
