package daemon

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSupervisor(t *testing.T) (*Supervisor, string) {
	t.Helper()
	dir := t.TempDir()
	return NewSupervisor(zap.NewNop(), filepath.Join(dir, "daemon.pid"), filepath.Join(dir, "daemon.json")), dir
}

func TestSupervisor_Lifecycle(t *testing.T) {
	ctx := context.Background()
	sup, _ := newTestSupervisor(t)

	status, err := sup.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.Running)

	require.NoError(t, sup.Acquire(ctx))
	started := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, sup.WriteState(started, 4, "fp"))

	status, err = sup.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.Equal(t, os.Getpid(), status.PID)
	assert.Equal(t, 4, status.ActiveSchedules)
	require.NotNil(t, status.StartedAt)
	assert.True(t, started.Equal(*status.StartedAt))
	assert.NotZero(t, status.MemoryRSS)

	// Re-acquiring from the owning process is allowed
	require.NoError(t, sup.Acquire(ctx))

	require.NoError(t, sup.Release())
	status, err = sup.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.Running)
}

func TestSupervisor_StalePIDFile(t *testing.T) {
	ctx := context.Background()
	sup, _ := newTestSupervisor(t)

	require.NoError(t, os.WriteFile(sup.pidFile, []byte("99999999\n"), 0o644))

	status, err := sup.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.Running)
	assert.True(t, status.Stale)

	require.NoError(t, sup.Acquire(ctx))
	pid, err := sup.readPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	assert.ErrorIs(t, NewSupervisor(zap.NewNop(), filepath.Join(t.TempDir(), "none.pid"), "").Stop(ctx, time.Second), ErrNotRunning)
}

func TestSupervisor_AcquireRefusesLiveDaemon(t *testing.T) {
	ctx := context.Background()
	sup, _ := newTestSupervisor(t)

	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	t.Cleanup(func() { cmd.Process.Kill() })
	go cmd.Wait()

	require.NoError(t, os.WriteFile(sup.pidFile, []byte(strconv.Itoa(cmd.Process.Pid)), 0o644))
	assert.ErrorIs(t, sup.Acquire(ctx), ErrAlreadyRunning)

	// Release leaves files owned by another process alone
	require.NoError(t, sup.Release())
	_, err := os.Stat(sup.pidFile)
	assert.NoError(t, err)
}

func TestSupervisor_Stop(t *testing.T) {
	ctx := context.Background()
	sup, _ := newTestSupervisor(t)

	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	t.Cleanup(func() { cmd.Process.Kill() })
	go cmd.Wait()

	require.NoError(t, os.WriteFile(sup.pidFile, []byte(strconv.Itoa(cmd.Process.Pid)), 0o644))

	require.NoError(t, sup.Stop(ctx, 5*time.Second))

	status, err := sup.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.Running)
}
