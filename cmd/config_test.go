package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/ccnotify/internal/output"
)

// testEnv sets up isolated config and state dirs, viper, and captured
// output. It returns the state dir, which is kept short for socket paths.
func testEnv(t *testing.T) (string, *bytes.Buffer) {
	t.Helper()
	cfgDir := t.TempDir()
	state, err := os.MkdirTemp("", "ccn")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(state) })

	origFunc := configDirFunc
	configDirFunc = func() (string, error) { return cfgDir, nil }
	t.Cleanup(func() { configDirFunc = origFunc })

	viper.Reset()
	setDefaults(state)
	configForce = false

	color.NoColor = true
	var buf bytes.Buffer
	ui = &output.UI{Out: &buf, ErrOut: &buf}

	return state, &buf
}

func configPath(t *testing.T) string {
	t.Helper()
	p, err := configFilePath()
	require.NoError(t, err)
	return p
}

func TestConfigInit_CreatesFile(t *testing.T) {
	testEnv(t)

	require.NoError(t, configInitRun())

	data, err := os.ReadFile(configPath(t))
	require.NoError(t, err)
	assert.Contains(t, string(data), "ccnotify configuration")
	assert.Contains(t, string(data), "notify:")
	assert.Contains(t, string(data), "max_body: 200")
}

func TestConfigInit_TemplateIsValidYAML(t *testing.T) {
	state, _ := testEnv(t)
	require.NoError(t, configInitRun())

	v := viper.New()
	v.SetConfigFile(configPath(t))
	require.NoError(t, v.ReadInConfig())

	assert.Equal(t, state, v.GetString("state_dir"))
	assert.Equal(t, "Claude Code", v.GetString("notify.title"))
	assert.Equal(t, 200, v.GetInt("notify.max_body"))
	assert.True(t, v.GetBool("notify.enabled"))
	assert.Equal(t, 5*time.Second, v.GetDuration("liveness.interval"))
	assert.Equal(t, time.Second, v.GetDuration("daemon.launch_grace"))
	assert.Equal(t, "info", v.GetString("log.level"))
}

func TestConfigInit_RefusesOverwrite(t *testing.T) {
	testEnv(t)
	require.NoError(t, os.WriteFile(configPath(t), []byte("existing"), 0o644))

	err := configInitRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestConfigInit_ForceOverwrite(t *testing.T) {
	testEnv(t)
	require.NoError(t, os.WriteFile(configPath(t), []byte("existing"), 0o644))

	configForce = true
	require.NoError(t, configInitRun())

	data, err := os.ReadFile(configPath(t))
	require.NoError(t, err)
	assert.Contains(t, string(data), "ccnotify configuration")
}

func TestConfigShow_NoFile(t *testing.T) {
	state, out := testEnv(t)

	require.NoError(t, configShowRun())
	assert.Contains(t, out.String(), "(none)")
	assert.Contains(t, out.String(), filepath.Join(state, "notifications.sock"))
	assert.Contains(t, out.String(), "(default)")
}

func TestConfigShow_WithFile(t *testing.T) {
	_, out := testEnv(t)
	require.NoError(t, os.WriteFile(configPath(t), []byte("notify:\n  title: Agent\n"), 0o644))
	viper.SetConfigFile(configPath(t))
	require.NoError(t, viper.ReadInConfig())

	require.NoError(t, configShowRun())
	assert.Contains(t, out.String(), configPath(t))
	assert.Regexp(t, `notify\.title\s+Agent\s+\(file\)`, out.String())
}

func TestConfigEdit_NoEditor(t *testing.T) {
	testEnv(t)
	t.Setenv("EDITOR", "")
	t.Setenv("VISUAL", "")

	err := configEditRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "$EDITOR is not set")
}

func TestConfigEdit_NoConfigFile(t *testing.T) {
	testEnv(t)
	t.Setenv("EDITOR", "echo")

	err := configEditRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestDetectSource(t *testing.T) {
	fileValues := map[string]bool{"key_a": true}

	t.Setenv("CCNOTIFY_TEST_KEY", "val")
	assert.Contains(t, detectSource("test_key", "CCNOTIFY_TEST_KEY", fileValues), "env")
	assert.Contains(t, detectSource("key_a", "CCNOTIFY_KEY_A_NONEXISTENT", fileValues), "file")
	assert.Contains(t, detectSource("key_b", "CCNOTIFY_KEY_B_NONEXISTENT", fileValues), "default")
}

func TestFlattenKeys(t *testing.T) {
	input := map[string]any{
		"top": "val",
		"nested": map[string]any{
			"a": "1",
			"b": "2",
		},
	}

	result := make(map[string]bool)
	flattenKeys("", input, result)

	assert.True(t, result["top"])
	assert.True(t, result["nested.a"])
	assert.True(t, result["nested.b"])
	assert.False(t, result["nested"])
}

func TestStatePaths(t *testing.T) {
	state, _ := testEnv(t)

	assert.Equal(t, filepath.Join(state, "notifications.sock"), socketPath())
	assert.Equal(t, filepath.Join(state, "control.sock"), controlSocketPath())
	assert.Equal(t, filepath.Join(state, "daemon.pid"), pidFilePath())
	assert.Equal(t, filepath.Join(state, "daemon.log"), logFilePath())

	viper.Set("socket_path", "/tmp/elsewhere.sock")
	assert.Equal(t, "/tmp/elsewhere.sock", socketPath())

	viper.Set("state_dir", "/var/ccn")
	assert.Equal(t, "/var/ccn/control.sock", controlSocketPath())
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".claude-notify"), expandHome("~/.claude-notify"))
	assert.Equal(t, home, expandHome("~"))
	assert.Equal(t, "/abs/path", expandHome("/abs/path"))
	assert.Equal(t, "~user/x", expandHome("~user/x"))
}

func TestGateConfig(t *testing.T) {
	testEnv(t)
	viper.Set("notify.title", "Agent")
	viper.Set("notify.max_body", 50)
	viper.Set("notify.enabled", false)

	cfg := gateConfig()
	assert.Equal(t, "Agent", cfg.Title)
	assert.Equal(t, 50, cfg.MaxBody)
	assert.False(t, cfg.Enabled)
}

func TestEnvOverride(t *testing.T) {
	testEnv(t)
	t.Setenv("CCNOTIFY_NOTIFY_TITLE", "From Env")
	viper.SetEnvPrefix("CCNOTIFY")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	assert.Equal(t, "From Env", gateConfig().Title)
}
