//go:build linux

package sysutil

import (
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcName_Self(t *testing.T) {
	name := ProcName(int32(os.Getpid()))
	assert.NotEmpty(t, name)
	assert.NotEqual(t, "process exited too fast", name)
}

func TestProcName_Missing(t *testing.T) {
	// pid_max 上限为 4194304
	assert.Equal(t, "process exited too fast", ProcName(1<<23))
}

func TestKillProcess(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())

	require.NoError(t, KillProcess(int32(cmd.Process.Pid)))

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		assert.Error(t, err) // signal: killed
	case <-time.After(5 * time.Second):
		t.Fatal("process survived SIGKILL")
	}
}

func TestKillProcess_NoSuchProcess(t *testing.T) {
	err := KillProcess(1 << 23)
	assert.ErrorIs(t, err, ErrNoSuchProcess)
}

func TestMountPointOf(t *testing.T) {
	mp, _ := MountPointOf("/proc/self/status")
	assert.Equal(t, "/proc", mp)

	mp, _ = MountPointOf("/")
	assert.Equal(t, "/", mp)
}

func TestIsWithin(t *testing.T) {
	assert.True(t, isWithin("/mnt/data/file", "/mnt/data"))
	assert.True(t, isWithin("/mnt/data", "/mnt/data"))
	assert.False(t, isWithin("/mnt/database", "/mnt/data"))
	assert.True(t, isWithin("/anything", "/"))
}
