package daemon

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/ccnotify/internal/client"
	"github.com/joescharf/ccnotify/internal/gate"
	"github.com/joescharf/ccnotify/internal/hook"
	"github.com/joescharf/ccnotify/internal/liveness"
	"github.com/joescharf/ccnotify/internal/listener"
	"github.com/joescharf/ccnotify/internal/logging"
	"github.com/joescharf/ccnotify/internal/registry"
)

type alertSink struct {
	mu     sync.Mutex
	alerts []gate.Alert
}

func (s *alertSink) Notify(a gate.Alert) {
	s.mu.Lock()
	s.alerts = append(s.alerts, a)
	s.mu.Unlock()
}

func (s *alertSink) all() []gate.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]gate.Alert(nil), s.alerts...)
}

type testDaemon struct {
	d    *Daemon
	cfg  Config
	sink *alertSink
	errc chan error
}

func stateDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "ccn")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func testConfig(dir string) Config {
	return Config{
		SocketPath:        filepath.Join(dir, "n.sock"),
		ControlSocketPath: filepath.Join(dir, "c.sock"),
		PIDFile:           filepath.Join(dir, "daemon.pid"),
		LivenessInterval:  time.Hour,
		Gate:              gate.DefaultConfig(),
		Home:              "/home/u",
		Version:           "test",
	}
}

func startDaemon(t *testing.T, mutate func(*Config)) *testDaemon {
	t.Helper()
	sink := &alertSink{}
	cfg := testConfig(stateDir(t))
	cfg.Notifiers = []gate.Notifier{sink}
	if mutate != nil {
		mutate(&cfg)
	}

	d := New(cfg)
	errc := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		errc <- d.Run(context.Background())
		close(done)
	}()

	ctl := client.NewControl(cfg.ControlSocketPath)
	require.Eventually(t, func() bool {
		_, err := ctl.Health(context.Background())
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	td := &testDaemon{d: d, cfg: cfg, sink: sink, errc: errc}
	t.Cleanup(func() {
		d.Quit()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	})
	return td
}

func (td *testDaemon) send(t *testing.T, h hook.Type, id, msg string) {
	t.Helper()
	s := client.NewSender(td.cfg.SocketPath,
		client.WithProcessCheck(func(context.Context) bool { return true }),
		client.WithLauncher(func() error { t.Fatal("daemon should already be running"); return nil }),
	)
	require.NoError(t, s.Send(context.Background(), hook.NewEvent(h, id, os.Getpid(), "/home/u/proj", msg)))
}

func (td *testDaemon) waitStatus(t *testing.T, id string, want registry.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		rec, ok := td.d.Registry().Get(id)
		return ok && rec.Status == want
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDaemon_EventsReachRegistryAndGate(t *testing.T) {
	td := startDaemon(t, nil)

	td.send(t, hook.PreToolUse, "S1", "")
	td.waitStatus(t, "S1", registry.StatusWorking)

	td.send(t, hook.Stop, "S1", "All done")
	td.waitStatus(t, "S1", registry.StatusIdle)

	require.Eventually(t, func() bool { return len(td.sink.all()) == 1 }, 2*time.Second, 5*time.Millisecond)
	a := td.sink.all()[0]
	assert.Equal(t, "Claude Code", a.Title)
	assert.Equal(t, "~/proj", a.Subtitle)
	assert.Equal(t, "All done", a.Body)
	assert.Equal(t, 1, td.d.Registry().WaitingCount())
}

func TestDaemon_MutedSessionDoesNotAlert(t *testing.T) {
	td := startDaemon(t, nil)
	ctl := client.NewControl(td.cfg.ControlSocketPath)
	ctx := context.Background()

	td.send(t, hook.PreToolUse, "S1", "")
	td.waitStatus(t, "S1", registry.StatusWorking)

	res, err := ctl.ToggleMute(ctx, "S1")
	require.NoError(t, err)
	require.True(t, res.Muted)

	td.send(t, hook.Stop, "S1", "quiet")
	td.waitStatus(t, "S1", registry.StatusIdle)

	_, err = ctl.ToggleMute(ctx, "S1")
	require.NoError(t, err)
	td.send(t, hook.Notification, "S1", "loud")

	require.Eventually(t, func() bool { return len(td.sink.all()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "loud", td.sink.all()[0].Body)
}

func TestDaemon_LivenessMarksExited(t *testing.T) {
	var mu sync.Mutex
	dead := map[int]bool{}
	td := startDaemon(t, func(c *Config) {
		c.LivenessInterval = 10 * time.Millisecond
		c.Prober = liveness.ProberFunc(func(pid int) bool {
			mu.Lock()
			defer mu.Unlock()
			return !dead[pid]
		})
	})

	td.send(t, hook.PreToolUse, "S1", "")
	td.waitStatus(t, "S1", registry.StatusWorking)

	mu.Lock()
	dead[os.Getpid()] = true
	mu.Unlock()
	td.waitStatus(t, "S1", registry.StatusExited)

	removed, err := client.NewControl(td.cfg.ControlSocketPath).ClearExited(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, td.d.Registry().Len())
}

func TestDaemon_SetGateConfig(t *testing.T) {
	td := startDaemon(t, nil)
	td.d.SetGateConfig(gate.Config{Title: "Agent", MaxBody: 10, Enabled: true})

	td.send(t, hook.Stop, "S1", "a fairly long message")
	require.Eventually(t, func() bool { return len(td.sink.all()) == 1 }, 2*time.Second, 5*time.Millisecond)
	a := td.sink.all()[0]
	assert.Equal(t, "Agent", a.Title)
	assert.Equal(t, "a fairl...", a.Body)
}

func TestDaemon_QuitRemovesSocketsAndPIDFile(t *testing.T) {
	td := startDaemon(t, nil)

	pid, err := NewPIDFile(td.cfg.PIDFile).Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, client.NewControl(td.cfg.ControlSocketPath).Quit(context.Background()))
	select {
	case err := <-td.errc:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("daemon did not stop")
	}

	for _, p := range []string{td.cfg.SocketPath, td.cfg.ControlSocketPath, td.cfg.PIDFile} {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), p)
	}
}

func TestDaemon_ContextCancelStops(t *testing.T) {
	cfg := testConfig(stateDir(t))
	d := New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- d.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(cfg.ControlSocketPath)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestDaemon_SecondInstanceRefused(t *testing.T) {
	td := startDaemon(t, nil)

	second := New(td.cfg)
	err := second.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, listener.ErrAlreadyRunning)

	_, err = os.Stat(td.cfg.SocketPath)
	assert.NoError(t, err, "running daemon's socket must survive")

	pid, err := NewPIDFile(td.cfg.PIDFile).Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestDaemon_SecondInstanceLeavesLogIntact(t *testing.T) {
	logPath := filepath.Join(stateDir(t), "daemon.log")
	first, err := logging.New(logging.Options{File: logPath})
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Close() })

	td := startDaemon(t, func(c *Config) {
		c.Logger = first.Logger
		c.ResetLog = first.Truncate
	})
	readLog := func() string {
		data, err := os.ReadFile(logPath)
		require.NoError(t, err)
		return string(data)
	}
	require.Eventually(t, func() bool {
		return strings.Contains(readLog(), "daemon started")
	}, 2*time.Second, 10*time.Millisecond)

	second, err := logging.New(logging.Options{File: logPath})
	require.NoError(t, err)
	cfg := td.cfg
	cfg.Logger = second.Logger
	cfg.ResetLog = second.Truncate
	cfg.Notifiers = nil
	err = New(cfg).Run(context.Background())
	require.ErrorIs(t, err, listener.ErrAlreadyRunning)
	require.NoError(t, second.Close())

	first.Info("still serving")
	text := readLog()
	assert.Contains(t, text, "daemon started")
	assert.Contains(t, text, "still serving")
	assert.NotContains(t, text, "\x00")
}

func TestDaemon_QuitIsIdempotent(t *testing.T) {
	d := New(testConfig(stateDir(t)))
	d.Quit()
	d.Quit()
}
