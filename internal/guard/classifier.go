package guard

import (
	"fmt"
	"sync/atomic"

	"github.com/Hara602/folderSentry/internal/blackwhitelist"
	"github.com/Hara602/folderSentry/internal/model"
	"github.com/Hara602/folderSentry/internal/sysutil"
	"go.uber.org/zap"
)

// Enforcer 处置动作
type Enforcer interface {
	Enforce(pid int32, processName string) (blackwhitelist.Outcome, error)
}

// KillFunc 终止成功后调用，与事件处理在同一个 goroutine
type KillFunc func(ev model.RawIOEvent)

// NameResolver 按 PID 查询进程名
type NameResolver func(pid int32) string

// Stats 单调递增的计数器，可在其他 goroutine 读取
type Stats struct {
	Events   atomic.Int64
	Hits     atomic.Int64
	Kills    atomic.Int64
	Allowed  atomic.Int64
	Reserved atomic.Int64
	Failures atomic.Int64
	Panics   atomic.Int64
}

// Snapshot 计数器快照
type Snapshot struct {
	Events, Hits, Kills, Allowed, Reserved, Failures, Panics int64
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Events:   s.Events.Load(),
		Hits:     s.Hits.Load(),
		Kills:    s.Kills.Load(),
		Allowed:  s.Allowed.Load(),
		Reserved: s.Reserved.Load(),
		Failures: s.Failures.Load(),
		Panics:   s.Panics.Load(),
	}
}

// Classifier 无状态的逐事件分派
type Classifier struct {
	root     string
	enforcer Enforcer
	onKill   KillFunc
	resolve  NameResolver
	stats    Stats
}

func NewClassifier(protectedRoot string, enforcer Enforcer, onKill KillFunc) *Classifier {
	if onKill == nil {
		onKill = func(model.RawIOEvent) {}
	}
	return &Classifier{
		root:     protectedRoot,
		enforcer: enforcer,
		onKill:   onKill,
	}
}

// WithNameResolver 事件未携带进程名时，命中保护目录后才查询
func (c *Classifier) WithNameResolver(fn NameResolver) *Classifier {
	c.resolve = fn
	return c
}

func (c *Classifier) Stats() *Stats { return &c.stats }

// Handle 处理一个事件。单个事件的任何失败都不会影响后续事件
func (c *Classifier) Handle(ev model.RawIOEvent) {
	defer func() {
		if r := recover(); r != nil {
			c.stats.Panics.Add(1)
			sysutil.Log.Error("event handling panicked",
				zap.String("kind", ev.Kind.String()),
				zap.String("path", ev.Path),
				zap.Int32("pid", ev.PID),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()

	c.stats.Events.Add(1)
	if !IsUnderProtection(ev.Path, c.root) {
		return
	}
	c.stats.Hits.Add(1)
	if ev.ProcName == "" && c.resolve != nil {
		ev.ProcName = c.resolve(ev.PID)
	}

	outcome, err := c.enforcer.Enforce(ev.PID, ev.ProcName)
	switch outcome {
	case blackwhitelist.Killed:
		c.stats.Kills.Add(1)
		c.onKill(ev)
	case blackwhitelist.SkippedAllowed:
		c.stats.Allowed.Add(1)
	case blackwhitelist.SkippedReserved:
		c.stats.Reserved.Add(1)
	case blackwhitelist.Failed:
		// 终止失败直接丢弃，不重试
		c.stats.Failures.Add(1)
		sysutil.Log.Debug("enforcement failed", zap.Error(err))
	}
}
