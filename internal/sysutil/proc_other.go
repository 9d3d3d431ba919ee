//go:build !linux

package sysutil

import (
	"errors"
	"os"
)

var (
	ErrNoSuchProcess = errors.New("no such process")
	ErrNotPermitted  = errors.New("operation not permitted")
)

func ProcName(pid int32) string { return "unknown" }

func KillProcess(pid int32) error {
	p, err := os.FindProcess(int(pid))
	if err != nil {
		return errors.Join(ErrNoSuchProcess, err)
	}
	if err := p.Kill(); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return errors.Join(ErrNoSuchProcess, err)
		}
		return err
	}
	return nil
}

func MountPointOf(path string) (mountPoint, fsType string) { return "/", "" }
