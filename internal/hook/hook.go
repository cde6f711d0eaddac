// Package hook defines the event record a hook invocation sends to the
// daemon and its newline-delimited JSON wire encoding.
package hook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// FrameType is the only accepted value of the wire "type" field.
const FrameType = "hook"

// ErrMalformedEvent is returned when a frame cannot be decoded into an Event.
var ErrMalformedEvent = errors.New("malformed event")

// Type is a hook lifecycle name as reported by the assistant.
type Type string

const (
	SessionStart       Type = "SessionStart"
	UserPromptSubmit   Type = "UserPromptSubmit"
	PreToolUse         Type = "PreToolUse"
	PostToolUse        Type = "PostToolUse"
	PostToolUseFailure Type = "PostToolUseFailure"
	PermissionRequest  Type = "PermissionRequest"
	SubagentStart      Type = "SubagentStart"
	SubagentStop       Type = "SubagentStop"
	PreCompact         Type = "PreCompact"
	SessionEnd         Type = "SessionEnd"
	Notification       Type = "Notification"
	Stop               Type = "Stop"
)

// Class is the session status a hook type implies.
type Class int

const (
	// Working means the assistant is busy.
	Working Class = iota
	// Idle means the assistant is waiting for the human.
	Idle
)

// Classify maps a hook type to the status it implies. Unknown types are
// Working so a session is never marked idle prematurely.
func Classify(t Type) Class {
	switch t {
	case Stop, Notification, SubagentStop:
		return Idle
	default:
		return Working
	}
}

// Alerts reports whether the hook type is one that asks for the human's
// attention. SubagentStop is idle but does not alert.
func Alerts(t Type) bool {
	return t == Stop || t == Notification
}

// Known reports whether t is one of the recognized hook names.
func Known(t Type) bool {
	switch t {
	case SessionStart, UserPromptSubmit, PreToolUse, PostToolUse, PostToolUseFailure,
		PermissionRequest, SubagentStart, SubagentStop, PreCompact, SessionEnd,
		Notification, Stop:
		return true
	}
	return false
}

// Event is one report from a hook invocation.
type Event struct {
	Type      string `json:"type"`
	HookType  Type   `json:"hookType"`
	SessionID string `json:"sessionId"`
	PID       int    `json:"pid"`
	Cwd       string `json:"cwd"`
	Message   string `json:"message"`
	// Timestamp is milliseconds since epoch at the sender. Informational only.
	Timestamp int64 `json:"timestamp"`
}

// NewEvent builds an Event stamped with the current time.
func NewEvent(hookType Type, sessionID string, pid int, cwd, message string) Event {
	return Event{
		Type:      FrameType,
		HookType:  hookType,
		SessionID: sessionID,
		PID:       pid,
		Cwd:       cwd,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	}
}

// EmittedAt returns the sender timestamp as a time.Time.
func (e Event) EmittedAt() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// wireEvent uses pointers so missing required fields can be told apart from
// zero values.
type wireEvent struct {
	Type      *string `json:"type"`
	HookType  *string `json:"hookType"`
	SessionID *string `json:"sessionId"`
	PID       *int    `json:"pid"`
	Cwd       string  `json:"cwd"`
	Message   string  `json:"message"`
	Timestamp int64   `json:"timestamp"`
}

// Decode parses a single frame. A trailing newline is allowed.
func Decode(frame []byte) (Event, error) {
	frame = bytes.TrimRight(frame, "\r\n")
	if len(bytes.TrimSpace(frame)) == 0 {
		return Event{}, fmt.Errorf("%w: empty frame", ErrMalformedEvent)
	}

	var w wireEvent
	if err := json.Unmarshal(frame, &w); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch {
	case w.Type == nil:
		return Event{}, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	case *w.Type != FrameType:
		return Event{}, fmt.Errorf("%w: unexpected type %q", ErrMalformedEvent, *w.Type)
	case w.HookType == nil || *w.HookType == "":
		return Event{}, fmt.Errorf("%w: missing hookType", ErrMalformedEvent)
	case w.SessionID == nil || *w.SessionID == "":
		return Event{}, fmt.Errorf("%w: missing sessionId", ErrMalformedEvent)
	case w.PID == nil:
		return Event{}, fmt.Errorf("%w: missing pid", ErrMalformedEvent)
	}

	return Event{
		Type:      *w.Type,
		HookType:  Type(*w.HookType),
		SessionID: *w.SessionID,
		PID:       *w.PID,
		Cwd:       w.Cwd,
		Message:   w.Message,
		Timestamp: w.Timestamp,
	}, nil
}

// Encode returns the frame for e, including the trailing newline.
func Encode(e Event) ([]byte, error) {
	if e.Type == "" {
		e.Type = FrameType
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return append(data, '\n'), nil
}
