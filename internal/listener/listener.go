// Package listener accepts hook event frames on a Unix domain socket.
package listener

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/joescharf/ccnotify/internal/hook"
	"github.com/joescharf/ccnotify/internal/logging"
)

// ErrAlreadyRunning is returned by Start when another process is accepting
// connections on the socket path.
var ErrAlreadyRunning = errors.New("daemon already running")

const (
	probeTimeout   = 500 * time.Millisecond
	readBufferSize = 64 * 1024
)

// Handler receives each decoded event, in stream order per connection.
type Handler func(ev hook.Event)

// Server is the event socket listener.
type Server struct {
	socketPath string
	handler    Handler
	log        *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	shutdown bool
	wg       sync.WaitGroup
}

// New creates a listener for socketPath. Events are passed to h.
func New(socketPath string, h Handler, log *slog.Logger) *Server {
	if log == nil {
		log = logging.Discard()
	}
	return &Server{
		socketPath: socketPath,
		handler:    h,
		log:        log.With("component", "listener"),
	}
}

// SocketPath returns the bound path.
func (s *Server) SocketPath() string { return s.socketPath }

// Start binds the socket and begins accepting connections in the background.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}

	if err := RemoveStale(s.socketPath); err != nil {
		return err
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		_ = ln.Close()
		return fmt.Errorf("set socket permissions: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.shutdown = false
	s.mu.Unlock()

	s.log.Debug("listening", "socket", s.socketPath)
	go s.acceptLoop(ln)
	return nil
}

// Stop closes the listener and removes the socket path. In-flight
// connections are not waited for.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.shutdown || s.listener == nil {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	ln := s.listener
	s.mu.Unlock()

	err := ln.Close()
	if rmErr := os.Remove(s.socketPath); rmErr != nil && !os.IsNotExist(rmErr) {
		return fmt.Errorf("remove socket: %w", rmErr)
	}
	if err != nil {
		return fmt.Errorf("close listener: %w", err)
	}
	s.log.Info("listener stopped", "socket", s.socketPath)
	return nil
}

// Wait blocks until every accepted connection has been handled. Tests use
// it to observe quiescence; the daemon never calls it on shutdown.
func (s *Server) Wait() { s.wg.Wait() }

// RemoveStale deletes a leftover socket at path. It returns
// ErrAlreadyRunning if something still accepts connections there, and
// refuses to delete anything that is not a socket.
func RemoveStale(path string) error {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat socket: %w", err)
	}
	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("refusing to remove %s: not a socket", path)
	}

	conn, err := net.DialTimeout("unix", path, probeTimeout)
	if err == nil {
		_ = conn.Close()
		return fmt.Errorf("%w: socket %s is in use", ErrAlreadyRunning, path)
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			shutdown := s.shutdown
			s.mu.Unlock()
			if shutdown || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept error", "error", err)
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection reads newline-terminated frames until EOF. Frames have
// no size limit.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() { _ = conn.Close() }()

	r := bufio.NewReaderSize(conn, readBufferSize)
	for {
		line, err := r.ReadBytes('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug("connection read error", "error", err)
			} else if len(bytes.TrimSpace(line)) > 0 {
				s.log.Debug("discarded partial frame at end of stream", "bytes", len(line))
			}
			return
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		ev, err := hook.Decode(line)
		if err != nil {
			s.log.Warn("dropping malformed frame", "error", err)
			continue
		}
		s.handler(ev)
	}
}
