package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/ccnotify/internal/api"
	"github.com/joescharf/ccnotify/internal/client"
	"github.com/joescharf/ccnotify/internal/daemon"
	"github.com/joescharf/ccnotify/internal/listener"
	"github.com/joescharf/ccnotify/internal/logging"
	"github.com/joescharf/ccnotify/internal/output"
)

const (
	daemonStartTimeout = 5 * time.Second
	daemonStopTimeout  = 5 * time.Second
	daemonPollInterval = 100 * time.Millisecond
)

var daemonStatusJSON bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run, start, stop or inspect the session daemon",
	Long: `Manage the ccnotify daemon.

The daemon is normally started on demand by 'ccnotify hook'. Use these
commands to run it in the foreground, or to control a background instance.`,
}

var daemonRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		return daemonRunRun(cmd.Context())
	},
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return daemonStartRun(cmd.Context())
	},
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return daemonStopRun(cmd.Context())
	},
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return daemonStatusRun(cmd.Context())
	},
}

func init() {
	daemonStatusCmd.Flags().BoolVar(&daemonStatusJSON, "json", false, "Output as JSON")

	daemonCmd.AddCommand(daemonRunCmd)
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	rootCmd.AddCommand(daemonCmd)
}

// daemonConfig builds the daemon settings from viper.
func daemonConfig(log *slog.Logger) daemon.Config {
	home, _ := os.UserHomeDir()
	return daemon.Config{
		SocketPath:        socketPath(),
		ControlSocketPath: controlSocketPath(),
		PIDFile:           pidFilePath(),
		LivenessInterval:  viper.GetDuration("liveness.interval"),
		Gate:              gateConfig(),
		Home:              home,
		Version:           buildVersion,
		Logger:            log,
	}
}

func daemonLogger() (*logging.Logger, error) {
	level := viper.GetString("log.level")
	if verbose {
		level = "debug"
	}
	return logging.New(logging.Options{
		File:   logFilePath(),
		Level:  level,
		Format: viper.GetString("log.format"),
		Stderr: verbose,
	})
}

func daemonRunRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := daemonLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	cfg := daemonConfig(logger.Logger)
	cfg.ResetLog = logger.Truncate
	d := daemon.New(cfg)
	watchGateConfig(d, logger.Logger)

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
	defer stop()

	if err := d.Run(ctx); err != nil {
		logger.Error("daemon failed", "error", err)
		if errors.Is(err, listener.ErrAlreadyRunning) {
			return fmt.Errorf("%w (see 'ccnotify daemon status')", err)
		}
		return err
	}
	return nil
}

// watchGateConfig reloads the notify.* settings when the config file
// changes. Other keys need a restart.
func watchGateConfig(d *daemon.Daemon, log *slog.Logger) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		log.Info("config file changed", "file", e.Name, "op", e.Op.String())
		d.SetGateConfig(gateConfig())
	})
	viper.WatchConfig()
}

// daemonRunArgs returns the arguments a detached daemon is started with.
func daemonRunArgs() []string {
	args := []string{"daemon", "run"}
	if cfg := viper.ConfigFileUsed(); cfg != "" {
		args = append(args, "--config", cfg)
	}
	return args
}

func launchDaemon() (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("get executable path: %w", err)
	}
	return client.LaunchDetached(exe, daemonRunArgs()...)
}

func daemonStartRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if pid, running := daemon.NewPIDFile(pidFilePath()).IsRunning(); running {
		return fmt.Errorf("daemon already running (PID %d)", pid)
	}
	ctl := newControl()
	if h, err := ctl.Health(ctx); err == nil {
		return fmt.Errorf("daemon already running (PID %d)", h.PID)
	}

	pid, err := launchDaemon()
	if err != nil {
		return err
	}
	ui.VerboseLog("Launched daemon process %d", pid)

	h, err := waitForHealth(ctx, ctl, daemonStartTimeout)
	if err != nil {
		return fmt.Errorf("daemon did not come up (log: %s): %w", logFilePath(), err)
	}
	ui.Success("Daemon running (PID %d)", h.PID)
	return nil
}

func waitForHealth(ctx context.Context, ctl *client.Control, timeout time.Duration) (api.HealthResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tick := time.NewTicker(daemonPollInterval)
	defer tick.Stop()
	for {
		h, err := ctl.Health(ctx)
		if err == nil {
			return h, nil
		}
		select {
		case <-ctx.Done():
			return api.HealthResponse{}, err
		case <-tick.C:
		}
	}
}

func daemonStopRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	pf := daemon.NewPIDFile(pidFilePath())
	pid, running := pf.IsRunning()
	if !running {
		// No usable PID file; a daemon may still answer on the control socket.
		if err := newControl().Quit(ctx); err == nil {
			ui.Success("Daemon stopped")
			return nil
		}
		return daemon.ErrNotRunning
	}

	if err := pf.Signal(sigTERM()); err != nil {
		if errors.Is(err, daemon.ErrNotRunning) {
			return err
		}
		return fmt.Errorf("signal daemon: %w", err)
	}

	if waitForExit(ctx, pf, daemonStopTimeout) {
		ui.Success("Daemon stopped (PID %d)", pid)
		return nil
	}

	ui.Warning("Daemon did not exit after %s, killing PID %d", daemonStopTimeout, pid)
	if err := pf.Signal(sigKILL()); err != nil && !errors.Is(err, daemon.ErrNotRunning) {
		return fmt.Errorf("kill daemon: %w", err)
	}
	_ = pf.Remove()
	return nil
}

func waitForExit(ctx context.Context, pf *daemon.PIDFile, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tick := time.NewTicker(daemonPollInterval)
	defer tick.Stop()
	for {
		if _, running := pf.IsRunning(); !running {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-tick.C:
		}
	}
}

type daemonStatus struct {
	Running           bool                `json:"running"`
	SocketPath        string              `json:"socketPath"`
	ControlSocketPath string              `json:"controlSocketPath"`
	LogFile           string              `json:"logFile"`
	Health            *api.HealthResponse `json:"health,omitempty"`
	Process           *client.ProcessInfo `json:"process,omitempty"`
}

func daemonStatusRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	st := daemonStatus{
		SocketPath:        socketPath(),
		ControlSocketPath: controlSocketPath(),
		LogFile:           logFilePath(),
	}

	h, err := newControl().Health(ctx)
	switch {
	case err == nil:
		st.Running = true
		st.Health = &h
		if info, err := client.DescribeProcess(ctx, h.PID); err == nil {
			st.Process = &info
		}
	case errors.Is(err, client.ErrDaemonUnreachable):
	default:
		return err
	}

	if daemonStatusJSON {
		return ui.JSON(st)
	}

	if !st.Running {
		if pid, running := daemon.NewPIDFile(pidFilePath()).IsRunning(); running {
			ui.Warning("Daemon process %d is running but not answering on %s", pid, st.ControlSocketPath)
			return nil
		}
		ui.Info("Daemon is not running")
		return nil
	}

	fmt.Fprintf(ui.Out, "  %-10s %s\n", "Status:", output.Green("running"))
	fmt.Fprintf(ui.Out, "  %-10s %d\n", "PID:", h.PID)
	fmt.Fprintf(ui.Out, "  %-10s %s\n", "Version:", h.Version)
	fmt.Fprintf(ui.Out, "  %-10s %s\n", "Uptime:", output.FormatDuration(h.Uptime))
	fmt.Fprintf(ui.Out, "  %-10s %d\n", "Sessions:", h.Sessions)
	fmt.Fprintf(ui.Out, "  %-10s %s\n", "Waiting:", output.WaitingColor(h.Waiting))
	fmt.Fprintf(ui.Out, "  %-10s %d\n", "Watchers:", h.Watchers)
	if st.Process != nil && st.Process.RSS > 0 {
		fmt.Fprintf(ui.Out, "  %-10s %s\n", "Memory:", output.FormatBytes(st.Process.RSS))
	}
	fmt.Fprintf(ui.Out, "  %-10s %s\n", "Socket:", st.SocketPath)
	fmt.Fprintf(ui.Out, "  %-10s %s\n", "Control:", st.ControlSocketPath)
	fmt.Fprintf(ui.Out, "  %-10s %s\n", "Log:", st.LogFile)
	return nil
}
