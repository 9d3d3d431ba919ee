package blackwhitelist

import (
	"errors"
	"fmt"

	"github.com/Hara602/folderSentry/internal/sysutil"
)

// Outcome 一次处置的结果
type Outcome int

const (
	Killed Outcome = iota
	SkippedAllowed
	SkippedReserved
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Killed:
		return "killed"
	case SkippedAllowed:
		return "skipped(allowed)"
	case SkippedReserved:
		return "skipped(reserved)"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

var (
	ErrProcessNotFound  = errors.New("process not found")
	ErrPermissionDenied = errors.New("permission denied")
)

// EnforcementError 终止失败 (进程已退出、权限不足、与退出竞争)
type EnforcementError struct {
	PID      int32
	ProcName string
	Err      error
}

func (e *EnforcementError) Error() string {
	return fmt.Sprintf("kill %s (pid %d) failed: %v", e.ProcName, e.PID, e.Err)
}

func (e *EnforcementError) Unwrap() error { return e.Err }

// ProcessKiller 终止进程的底层实现
type ProcessKiller interface {
	Kill(pid int32) error
}

// KillerFunc 让普通函数满足 ProcessKiller
type KillerFunc func(pid int32) error

func (f KillerFunc) Kill(pid int32) error { return f(pid) }

// SystemKiller 发送 SIGKILL
var SystemKiller ProcessKiller = KillerFunc(sysutil.KillProcess)

// Enforcer 判定并终止访问受保护目录的进程
type Enforcer struct {
	allow    *Allowlist
	reserved map[int32]struct{}
	killer   ProcessKiller
}

// NewEnforcer 0 和 4 始终保留
func NewEnforcer(allow *Allowlist, killer ProcessKiller, reservedPIDs ...int32) *Enforcer {
	e := &Enforcer{
		allow:    allow,
		reserved: map[int32]struct{}{0: {}, 4: {}},
		killer:   killer,
	}
	for _, pid := range reservedPIDs {
		e.reserved[pid] = struct{}{}
	}
	return e
}

func (e *Enforcer) IsReserved(pid int32) bool {
	_, ok := e.reserved[pid]
	return ok
}

// Enforce 立即终止，不重试
func (e *Enforcer) Enforce(pid int32, processName string) (Outcome, error) {
	if e.allow.IsExempt(processName) {
		return SkippedAllowed, nil
	}
	if e.IsReserved(pid) {
		return SkippedReserved, nil
	}

	if err := e.killer.Kill(pid); err != nil {
		switch {
		case errors.Is(err, sysutil.ErrNoSuchProcess):
			err = fmt.Errorf("%w: %v", ErrProcessNotFound, err)
		case errors.Is(err, sysutil.ErrNotPermitted):
			err = fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return Failed, &EnforcementError{PID: pid, ProcName: processName, Err: err}
	}
	return Killed, nil
}
