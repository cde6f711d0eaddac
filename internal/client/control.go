package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/joescharf/ccnotify/internal/api"
	"github.com/joescharf/ccnotify/internal/view"
)

// controlHost is a placeholder; every request is dialed to the socket.
const controlHost = "ccnotify"

// Control is a client for the daemon's HTTP control API on a Unix socket.
type Control struct {
	socketPath string
	http       *http.Client
}

// NewControl creates a Control for socketPath.
func NewControl(socketPath string) *Control {
	c := &Control{socketPath: socketPath}
	c.http = &http.Client{Transport: &http.Transport{DialContext: c.dialContext}}
	return c
}

func (c *Control) dialContext(ctx context.Context, _, _ string) (net.Conn, error) {
	d := net.Dialer{Timeout: dialTimeout}
	return d.DialContext(ctx, "unix", c.socketPath)
}

func (c *Control) do(ctx context.Context, method, path string, out any) (int, error) {
	u := url.URL{Scheme: "http", Host: controlHost, Path: path}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return 0, fmt.Errorf("%w: %v", ErrDaemonUnreachable, err)
		}
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		var e struct {
			Error string `json:"error"`
		}
		body, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return resp.StatusCode, fmt.Errorf("%s %s: %s", method, path, e.Error)
		}
		return resp.StatusCode, fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if resp.StatusCode == http.StatusNotFound || out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s response: %w", path, err)
	}
	return resp.StatusCode, nil
}

// Sessions returns the ordered session snapshot.
func (c *Control) Sessions(ctx context.Context) (view.Snapshot, error) {
	var snap view.Snapshot
	_, err := c.do(ctx, http.MethodGet, "/api/v1/sessions", &snap)
	return snap, err
}

// Session returns one session. found is false if the daemon does not know id.
func (c *Control) Session(ctx context.Context, id string) (view.SessionView, bool, error) {
	var sv view.SessionView
	code, err := c.do(ctx, http.MethodGet, "/api/v1/sessions/"+url.PathEscape(id), &sv)
	if err != nil {
		return sv, false, err
	}
	return sv, code != http.StatusNotFound, nil
}

// ToggleMute flips the mute flag of id.
func (c *Control) ToggleMute(ctx context.Context, id string) (api.MuteResponse, error) {
	var out api.MuteResponse
	_, err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+url.PathEscape(id)+"/mute", &out)
	return out, err
}

// ClearExited removes exited sessions and returns how many were removed.
func (c *Control) ClearExited(ctx context.Context) (int, error) {
	var out api.ClearResponse
	_, err := c.do(ctx, http.MethodDelete, "/api/v1/sessions/exited", &out)
	return out.Removed, err
}

// WaitingCount returns the number of idle, unmuted sessions.
func (c *Control) WaitingCount(ctx context.Context) (int, error) {
	var out api.WaitingResponse
	_, err := c.do(ctx, http.MethodGet, "/api/v1/waiting", &out)
	return out.WaitingCount, err
}

// Health returns daemon status.
func (c *Control) Health(ctx context.Context) (api.HealthResponse, error) {
	var out api.HealthResponse
	_, err := c.do(ctx, http.MethodGet, "/api/v1/health", &out)
	return out, err
}

// Quit asks the daemon to shut down.
func (c *Control) Quit(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/api/v1/quit", nil)
	return err
}

// Watch streams watch messages to fn until ctx is cancelled, the daemon
// closes the stream, or fn returns an error. A clean end returns nil.
func (c *Control) Watch(ctx context.Context, fn func(view.Message) error) error {
	dialer := websocket.Dialer{NetDialContext: c.dialContext}
	u := url.URL{Scheme: "ws", Host: controlHost, Path: "/api/v1/watch"}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDaemonUnreachable, err)
	}
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var msg view.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				websocket.IsUnexpectedCloseError(err) {
				return nil
			}
			return fmt.Errorf("read watch message: %w", err)
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
}
