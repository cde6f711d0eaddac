package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ccnotify"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage ccnotify configuration.

Running bare 'ccnotify config' is the same as 'ccnotify config show'.
A running daemon reloads the notify.* settings when the file changes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# ccnotify configuration
# See: ccnotify config show (for effective values and sources)

# Directory for sockets, PID file and log (default: ~/.claude-notify)
state_dir: {{ .StateDir }}

# Override individual paths (default: under state_dir)
# socket_path: {{ .StateDir }}/notifications.sock
# control_socket_path: {{ .StateDir }}/control.sock
# pid_file: {{ .StateDir }}/daemon.pid

log:
  # debug, info, warn or error
  level: {{ .LogLevel }}
  # text or json
  format: {{ .LogFormat }}

liveness:
  # How often session processes are checked
  interval: {{ .LivenessInterval }}

daemon:
  # Wait after auto-starting the daemon before sending
  launch_grace: {{ .LaunchGrace }}

# Alert settings, reloaded by a running daemon
notify:
  title: "{{ .NotifyTitle }}"
  max_body: {{ .NotifyMaxBody }}
  enabled: {{ .NotifyEnabled }}
`

type configTemplateData struct {
	StateDir         string
	LogLevel         string
	LogFormat        string
	LivenessInterval string
	LaunchGrace      string
	NotifyTitle      string
	NotifyMaxBody    int
	NotifyEnabled    bool
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:         viper.GetString("state_dir"),
		LogLevel:         viper.GetString("log.level"),
		LogFormat:        viper.GetString("log.format"),
		LivenessInterval: viper.GetDuration("liveness.interval").String(),
		LaunchGrace:      viper.GetDuration("daemon.launch_grace").String(),
		NotifyTitle:      viper.GetString("notify.title"),
		NotifyMaxBody:    viper.GetInt("notify.max_body"),
		NotifyEnabled:    viper.GetBool("notify.enabled"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(cfgPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
	// Resolve, when set, computes the effective value shown.
	Resolve func() string
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "CCNOTIFY_STATE_DIR", Resolve: stateDir},
	{Key: "socket_path", EnvVar: "CCNOTIFY_SOCKET_PATH", Resolve: socketPath},
	{Key: "control_socket_path", EnvVar: "CCNOTIFY_CONTROL_SOCKET_PATH", Resolve: controlSocketPath},
	{Key: "pid_file", EnvVar: "CCNOTIFY_PID_FILE", Resolve: pidFilePath},
	{Key: "log.file", EnvVar: "CCNOTIFY_LOG_FILE", Resolve: logFilePath},
	{Key: "log.level", EnvVar: "CCNOTIFY_LOG_LEVEL"},
	{Key: "log.format", EnvVar: "CCNOTIFY_LOG_FORMAT"},
	{Key: "liveness.interval", EnvVar: "CCNOTIFY_LIVENESS_INTERVAL"},
	{Key: "daemon.launch_grace", EnvVar: "CCNOTIFY_DAEMON_LAUNCH_GRACE"},
	{Key: "notify.title", EnvVar: "CCNOTIFY_NOTIFY_TITLE"},
	{Key: "notify.max_body", EnvVar: "CCNOTIFY_NOTIFY_MAX_BODY"},
	{Key: "notify.enabled", EnvVar: "CCNOTIFY_NOTIFY_ENABLED"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}
	if used := viper.ConfigFileUsed(); used != "" {
		cfgPath = used
	}

	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		var val any = viper.Get(k.Key)
		if k.Resolve != nil {
			val = k.Resolve()
		}
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-22s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'ccnotify config init' first)", cfgPath)
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
