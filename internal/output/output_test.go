package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUI() (*UI, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &UI{Out: out, ErrOut: errOut}, out, errOut
}

func TestInfo(t *testing.T) {
	u, out, _ := newTestUI()
	u.Info("hello %s", "world")
	assert.Contains(t, out.String(), "hello world")
}

func TestSuccess(t *testing.T) {
	u, out, _ := newTestUI()
	u.Success("done %d", 42)
	assert.Contains(t, out.String(), "done 42")
}

func TestWarning(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Warning("careful %s", "now")
	assert.Contains(t, errOut.String(), "careful now")
}

func TestError(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Error("failed %s", "badly")
	assert.Contains(t, errOut.String(), "failed badly")
}

func TestVerboseLog_Enabled(t *testing.T) {
	u, out, _ := newTestUI()
	u.Verbose = true
	u.VerboseLog("detail %d", 1)
	assert.Contains(t, out.String(), "detail 1")
}

func TestVerboseLog_Disabled(t *testing.T) {
	u, out, _ := newTestUI()
	u.Verbose = false
	u.VerboseLog("detail %d", 1)
	assert.Empty(t, out.String())
}

func TestColorHelpers(t *testing.T) {
	// Color helpers should return non-empty strings
	assert.NotEmpty(t, Cyan("test"))
	assert.NotEmpty(t, Green("test"))
	assert.NotEmpty(t, Yellow("test"))
}

func TestStatusColor(t *testing.T) {
	assert.Contains(t, StatusColor("idle"), "idle")
	assert.Contains(t, StatusColor("working"), "working")
	assert.Contains(t, StatusColor("exited"), "exited")
	assert.Equal(t, "unknown", StatusColor("unknown"))
}

func TestWaitingColor(t *testing.T) {
	assert.Contains(t, WaitingColor(0), "0")
	assert.Contains(t, WaitingColor(3), "3")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{-5 * time.Second, "0s"},
		{999 * time.Millisecond, "0s"},
		{42 * time.Second, "42s"},
		{2*time.Minute + 5*time.Second, "2m 5s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h 2m 3s"},
		{26 * time.Hour, "26h 0m 0s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.in), tt.in.String())
	}
}

func TestTimeAgo(t *testing.T) {
	assert.Equal(t, "just now", TimeAgo(time.Now()))
	assert.Equal(t, "5m ago", TimeAgo(time.Now().Add(-5*time.Minute-time.Second)))
	assert.Equal(t, "3h ago", TimeAgo(time.Now().Add(-3*time.Hour-time.Second)))
	assert.Equal(t, "1d ago", TimeAgo(time.Now().Add(-25*time.Hour)))
	assert.Equal(t, "4d ago", TimeAgo(time.Now().Add(-4*24*time.Hour-time.Hour)))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.0 KB", FormatBytes(1024))
	assert.Equal(t, "1.5 MB", FormatBytes(1536*1024))
}

func TestJSON(t *testing.T) {
	u, out, _ := newTestUI()
	require.NoError(t, u.JSON(map[string]int{"waitingCount": 2}))
	assert.Equal(t, "{\n  \"waitingCount\": 2\n}\n", out.String())
}

func TestTable(t *testing.T) {
	u, out, _ := newTestUI()
	table := u.Table([]string{"Session", "Status"})
	require.NotNil(t, table)

	table.Append([]string{"sess-a", "idle"})
	table.Append([]string{"sess-b", "working"})
	err := table.Render()
	require.NoError(t, err)

	result := out.String()
	assert.True(t, strings.Contains(result, "sess-a") || strings.Contains(result, "SESS-A"),
		"table output should contain session ids")
	assert.True(t, strings.Contains(result, "sess-b") || strings.Contains(result, "SESS-B"),
		"table output should contain session ids")
}
