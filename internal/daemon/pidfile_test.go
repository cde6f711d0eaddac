package daemon

import (
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFile_WriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pid")
	pf := NewPIDFile(path)

	err := pf.WritePID(12345)
	require.NoError(t, err)

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, 12345, pid)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestPIDFile_Write_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "daemon.pid")
	pf := NewPIDFile(path)

	require.NoError(t, pf.Write())

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestPIDFile_Read_MissingFile(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "nonexistent.pid"))

	_, err := pf.Read()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPIDFile_Read_InvalidContent(t *testing.T) {
	for _, content := range []string{"not-a-number\n", "0\n", "-4\n"} {
		path := filepath.Join(t.TempDir(), "bad.pid")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		_, err := NewPIDFile(path).Read()
		require.Error(t, err, content)
		assert.Contains(t, err.Error(), "invalid PID file content")
	}
}

func TestPIDFile_Remove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pid")
	pf := NewPIDFile(path)

	require.NoError(t, pf.WritePID(1))
	require.NoError(t, pf.Remove())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.Error(t, pf.Remove())
}

func TestPIDFile_RemoveIfOwned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pid")
	pf := NewPIDFile(path)

	require.NoError(t, pf.WritePID(os.Getpid()+1))
	require.NoError(t, pf.RemoveIfOwned())
	_, err := os.Stat(path)
	assert.NoError(t, err, "another process's PID file must survive")

	require.NoError(t, pf.Write())
	require.NoError(t, pf.RemoveIfOwned())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, pf.RemoveIfOwned())
}

func TestPIDFile_IsRunning_CurrentProcess(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "test.pid"))
	require.NoError(t, pf.Write())

	pid, running := pf.IsRunning()
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPIDFile_IsRunning_DeadProcess(t *testing.T) {
	cmd := exec.Command(os.Args[0], "-test.run=^$")
	require.NoError(t, cmd.Run())

	pf := NewPIDFile(filepath.Join(t.TempDir(), "test.pid"))
	require.NoError(t, pf.WritePID(cmd.Process.Pid))

	pid, running := pf.IsRunning()
	assert.Equal(t, cmd.Process.Pid, pid)
	assert.False(t, running)
}

func TestPIDFile_IsRunning_NoFile(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "nonexistent.pid"))

	pid, running := pf.IsRunning()
	assert.Equal(t, 0, pid)
	assert.False(t, running)
}

func TestPIDFile_Signal(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "test.pid"))
	require.NoError(t, pf.Write())

	// Signal 0 just checks if process exists, doesn't actually send a signal.
	assert.NoError(t, pf.Signal(syscall.Signal(0)))
}

func TestPIDFile_Signal_NoFile(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "nonexistent.pid"))

	err := pf.Signal(syscall.Signal(0))
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestPIDFile_Signal_BadContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pid")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))

	err := NewPIDFile(path).Signal(syscall.Signal(0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read PID file")
}
