package registry

import (
	"time"

	"github.com/joescharf/ccnotify/internal/hook"
)

// Status is the derived state of a session.
type Status string

const (
	StatusWorking Status = "working"
	StatusIdle    Status = "idle"
	StatusExited  Status = "exited"
)

// rank orders statuses for display: idle first, then working, then exited.
func (s Status) rank() int {
	switch s {
	case StatusIdle:
		return 0
	case StatusWorking:
		return 1
	default:
		return 2
	}
}

// StatusFor returns the status a hook type moves a session into.
func StatusFor(t hook.Type) Status {
	if hook.Classify(t) == hook.Idle {
		return StatusIdle
	}
	return StatusWorking
}

// Record is the state of one assistant session. Values handed out by the
// Registry are copies and may be retained freely.
type Record struct {
	ID           string        `json:"id"`
	PID          int           `json:"pid"`
	Cwd          string        `json:"cwd"`
	LastMessage  string        `json:"lastMessage"`
	Status       Status        `json:"status"`
	CreatedAt    time.Time     `json:"createdAt"`
	LastEventAt  time.Time     `json:"lastEventAt"`
	TotalWorking time.Duration `json:"totalWorking"`
	// WorkingSince is set iff Status is StatusWorking.
	WorkingSince *time.Time `json:"workingSince,omitempty"`
	Muted        bool       `json:"muted"`
}

// clone returns a copy that shares no pointers with r.
func (r *Record) clone() Record {
	c := *r
	if r.WorkingSince != nil {
		t := *r.WorkingSince
		c.WorkingSince = &t
	}
	return c
}

// WorkingTime returns the closed working total plus the open interval, if any.
func (r Record) WorkingTime(now time.Time) time.Duration {
	total := r.TotalWorking
	if r.WorkingSince != nil {
		if d := now.Sub(*r.WorkingSince); d > 0 {
			total += d
		}
	}
	return total
}

// CurrentInterval returns the length of the open working interval, or zero.
func (r Record) CurrentInterval(now time.Time) time.Duration {
	if r.WorkingSince == nil {
		return 0
	}
	if d := now.Sub(*r.WorkingSince); d > 0 {
		return d
	}
	return 0
}

// transition moves the record to status to, closing or opening the working
// interval as needed. A no-op when the status is unchanged, so repeated
// working events never reopen the interval.
func (r *Record) transition(to Status, now time.Time) {
	if r.Status == to {
		return
	}
	if r.Status == StatusWorking && r.WorkingSince != nil {
		if d := now.Sub(*r.WorkingSince); d > 0 {
			r.TotalWorking += d
		}
		r.WorkingSince = nil
	}
	if to == StatusWorking {
		t := now
		r.WorkingSince = &t
	}
	r.Status = to
}
