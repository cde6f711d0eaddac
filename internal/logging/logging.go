// Package logging builds the daemon's structured logger. The daemon creates
// one Logger at startup, passes the *slog.Logger down to every component and
// closes it on shutdown.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Options configures New.
type Options struct {
	// File is the log file path. It is opened for append; call Truncate to
	// start it afresh. Empty means no file.
	File string
	// Level is one of debug, info, warn, error.
	Level string
	// Format is "text" or "json".
	Format string
	// Stderr also writes records to standard error.
	Stderr bool
}

// Logger is a slog.Logger that owns its output file.
type Logger struct {
	*slog.Logger
	file *os.File
}

// New opens the log destination and returns a Logger. Call Close when done.
func New(opts Options) (*Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	var writers []io.Writer
	var file *os.File
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o700); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		file = f
		writers = append(writers, f)
	}
	if opts.Stderr {
		writers = append(writers, os.Stderr)
	}

	var w io.Writer
	switch len(writers) {
	case 0:
		w = io.Discard
	case 1:
		w = writers[0]
	default:
		w = io.MultiWriter(writers...)
	}

	handler, err := newHandler(w, opts.Format, level)
	if err != nil {
		if file != nil {
			_ = file.Close()
		}
		return nil, err
	}

	return &Logger{Logger: slog.New(handler), file: file}, nil
}

func newHandler(w io.Writer, format string, level slog.Level) (slog.Handler, error) {
	ho := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.NewTextHandler(w, ho), nil
	case "json":
		return slog.NewJSONHandler(w, ho), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (want text or json)", format)
	}
}

// Truncate empties the log file. Later records start at offset zero
// because the file is in append mode.
func (l *Logger) Truncate() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := l.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate log file: %w", err)
	}
	return nil
}

// Close flushes and closes the log file, if any. Safe to call more than once.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	return f.Close()
}

// ParseLevel converts a level name to a slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
