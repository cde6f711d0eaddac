package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/ccnotify/internal/client"
	"github.com/joescharf/ccnotify/internal/gate"
	"github.com/joescharf/ccnotify/internal/logging"
	"github.com/joescharf/ccnotify/internal/output"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui *output.UI

	verbose bool
)

// envKeyReplacer maps notify.title to CCNOTIFY_NOTIFY_TITLE.
var envKeyReplacer = strings.NewReplacer(".", "_")

var rootCmd = &cobra.Command{
	Use:   "ccnotify",
	Short: "Track Claude Code sessions and alert when one is waiting",
	Long: `ccnotify keeps a background daemon that follows every running Claude Code
session through its hooks. It knows which sessions are working, which are
waiting for you, and which have exited, and raises an alert when a session
stops or asks for attention.

Hooks run 'ccnotify hook' which starts the daemon on demand.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		if ui == nil {
			ui = output.New()
		}
		ui.Error("Error: %v", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/ccnotify/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		configDir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CCNOTIFY")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	home, _ := os.UserHomeDir()
	setDefaults(filepath.Join(home, ".claude-notify"))

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key. Socket, PID and log paths default
// to empty and are resolved under state_dir at use.
func setDefaults(stateDir string) {
	viper.SetDefault("state_dir", stateDir)
	viper.SetDefault("socket_path", "")
	viper.SetDefault("control_socket_path", "")
	viper.SetDefault("pid_file", "")
	viper.SetDefault("log.file", "")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("liveness.interval", "5s")
	viper.SetDefault("daemon.launch_grace", client.DefaultLaunchGrace.String())
	viper.SetDefault("notify.title", gate.DefaultTitle)
	viper.SetDefault("notify.max_body", gate.DefaultMaxBody)
	viper.SetDefault("notify.enabled", true)
}

// cliLogger is the slog logger for client-side commands: debug records to
// stderr with --verbose, nothing otherwise.
func cliLogger() *slog.Logger {
	if !verbose {
		return logging.Discard()
	}
	l, err := logging.New(logging.Options{
		Level:  "debug",
		Format: viper.GetString("log.format"),
		Stderr: true,
	})
	if err != nil {
		return logging.Discard()
	}
	return l.Logger
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
}

// expandHome replaces a leading ~/ with the user's home directory.
func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

func stateDir() string {
	return expandHome(viper.GetString("state_dir"))
}

// statePath returns the configured value of key, or name under state_dir.
func statePath(key, name string) string {
	if p := viper.GetString(key); p != "" {
		return expandHome(p)
	}
	return filepath.Join(stateDir(), name)
}

func socketPath() string        { return statePath("socket_path", "notifications.sock") }
func controlSocketPath() string { return statePath("control_socket_path", "control.sock") }
func pidFilePath() string       { return statePath("pid_file", "daemon.pid") }
func logFilePath() string       { return statePath("log.file", "daemon.log") }

func gateConfig() gate.Config {
	return gate.Config{
		Title:   viper.GetString("notify.title"),
		MaxBody: viper.GetInt("notify.max_body"),
		Enabled: viper.GetBool("notify.enabled"),
	}
}

func newControl() *client.Control {
	return client.NewControl(controlSocketPath())
}
