//go:build linux

package sysutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

var (
	ErrNoSuchProcess = errors.New("no such process")
	ErrNotPermitted  = errors.New("operation not permitted")
)

// ProcName 读取 /proc/<pid>/comm
func ProcName(pid int32) string {
	path := filepath.Join("/proc", strconv.Itoa(int(pid)), "comm")
	b, err := os.ReadFile(path)
	if err != nil {
		// 如果是进程的文件不存在，说明进程已经退出了
		if os.IsNotExist(err) {
			return "process exited too fast"
		}
		return "unknown"
	}
	return strings.TrimSpace(string(b))
}

// KillProcess 立即以 SIGKILL 终止进程
// 先通过 pidfd 锁定目标，避免 PID 复用导致误杀；内核不支持时退回 kill(2)
func KillProcess(pid int32) error {
	pidfd, err := unix.PidfdOpen(int(pid), 0)
	switch {
	case err == nil:
		defer unix.Close(pidfd)
		return mapErrno(unix.PidfdSendSignal(pidfd, unix.SIGKILL, nil, 0))
	case errors.Is(err, unix.ENOSYS):
		return mapErrno(unix.Kill(int(pid), unix.SIGKILL))
	default:
		return mapErrno(err)
	}
}

func mapErrno(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.ESRCH):
		return fmt.Errorf("%w: %v", ErrNoSuchProcess, err)
	case errors.Is(err, unix.EPERM), errors.Is(err, unix.EACCES):
		return fmt.Errorf("%w: %v", ErrNotPermitted, err)
	}
	return err
}
