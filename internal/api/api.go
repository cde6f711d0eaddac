// Package api serves the daemon's HTTP control API.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joescharf/ccnotify/internal/logging"
	"github.com/joescharf/ccnotify/internal/registry"
	"github.com/joescharf/ccnotify/internal/view"
)

// Sessions is the registry surface the API needs.
type Sessions interface {
	view.Source
	WaitingCount() int
	ToggleMute(id string) (registry.Record, bool)
	ClearExited() int
	Len() int
}

// Options configures a Server.
type Options struct {
	Version   string
	Projector view.Projector
	Logger    *slog.Logger
	// Quit is called, on its own goroutine, when a client asks the daemon to exit.
	Quit func()
}

// Server provides the REST API handlers.
type Server struct {
	sessions Sessions
	watch    *view.Broadcaster
	proj     view.Projector
	version  string
	quit     func()
	started  time.Time
	log      *slog.Logger

	http   *http.Server
	socket string
}

// NewServer creates a new API server. b may be nil, in which case the watch
// route is not registered.
func NewServer(s Sessions, b *view.Broadcaster, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Server{
		sessions: s,
		watch:    b,
		proj:     opts.Projector,
		version:  opts.Version,
		quit:     opts.Quit,
		started:  time.Now(),
		log:      log.With("component", "api"),
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/sessions", s.listSessions)
	mux.HandleFunc("DELETE /api/v1/sessions/exited", s.clearExited)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.getSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/mute", s.toggleMute)

	mux.HandleFunc("GET /api/v1/waiting", s.waitingCount)
	mux.HandleFunc("GET /api/v1/health", s.health)
	mux.HandleFunc("POST /api/v1/quit", s.quitDaemon)

	if s.watch != nil {
		mux.HandleFunc("GET /api/v1/watch", s.watchSessions)
	}

	return s.logRequests(mux)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- Sessions ---

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.proj.Current(s.sessions))
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sv, ok := s.proj.Lookup(s.sessions, id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sv)
}

// MuteResponse is the body returned by the mute route.
type MuteResponse struct {
	Found bool `json:"found"`
	Muted bool `json:"muted"`
}

// Unknown ids are not an error: the response reports found=false.
func (s *Server) toggleMute(w http.ResponseWriter, r *http.Request) {
	rec, found := s.sessions.ToggleMute(r.PathValue("id"))
	writeJSON(w, http.StatusOK, MuteResponse{Found: found, Muted: rec.Muted})
}

// ClearResponse is the body returned by the clear route.
type ClearResponse struct {
	Removed int `json:"removed"`
}

func (s *Server) clearExited(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ClearResponse{Removed: s.sessions.ClearExited()})
}

// WaitingResponse is the body returned by the waiting route.
type WaitingResponse struct {
	WaitingCount int `json:"waitingCount"`
}

func (s *Server) waitingCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, WaitingResponse{WaitingCount: s.sessions.WaitingCount()})
}

// --- Daemon ---

// HealthResponse describes the running daemon.
type HealthResponse struct {
	Status   string        `json:"status"`
	PID      int           `json:"pid"`
	Version  string        `json:"version"`
	Started  time.Time     `json:"started"`
	Uptime   time.Duration `json:"uptime"`
	Sessions int           `json:"sessions"`
	Waiting  int           `json:"waitingCount"`
	Watchers int           `json:"watchers"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "ok",
		PID:      os.Getpid(),
		Version:  s.version,
		Started:  s.started,
		Uptime:   time.Since(s.started).Round(time.Second),
		Sessions: s.sessions.Len(),
		Waiting:  s.sessions.WaitingCount(),
	}
	if s.watch != nil {
		resp.Watchers = s.watch.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) quitDaemon(w http.ResponseWriter, r *http.Request) {
	if s.quit == nil {
		writeError(w, http.StatusNotImplemented, "quit not supported")
		return
	}
	s.log.Info("quit requested over control API")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "shutting down"})
	go s.quit()
}
