// Package session 管理一次保护会话: 创建事件订阅、在专用 goroutine 上消费、
// 退出时只释放一次。
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Hara602/folderSentry/internal/analysis"
	"github.com/Hara602/folderSentry/internal/blackwhitelist"
	"github.com/Hara602/folderSentry/internal/guard"
	"github.com/Hara602/folderSentry/internal/killlog"
	"github.com/Hara602/folderSentry/internal/model"
	"github.com/Hara602/folderSentry/internal/monitor"
	"github.com/Hara602/folderSentry/internal/sysutil"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrSetupAbort     = errors.New("no protected path selected")
	ErrInvalidRoot    = errors.New("protected root must be an existing absolute directory")
	ErrAlreadyStarted = errors.New("session already started")
	ErrDisposed       = errors.New("session disposed")
)

type State int32

const (
	Uninitialized State = iota
	Active
	Disposed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Active:
		return "active"
	case Disposed:
		return "disposed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// SourceFactory 创建内核事件订阅
type SourceFactory func(opts monitor.Options) (monitor.TraceSource, error)

type Options struct {
	Allow        []string
	ReservedPIDs []int32
	NotifyBuffer int
	ReadBuffer   int

	Killer      blackwhitelist.ProcessKiller // 默认 SIGKILL
	NewSource   SourceFactory                // 默认 fanotify
	ResolveName guard.NameResolver           // 默认读取 /proc/<pid>/comm
}

// Stats 会话计数
type Stats struct {
	guard.Snapshot
	DroppedNotifications int64
}

// Manager 会话生命周期: Uninitialized → Active → Disposed
type Manager struct {
	id   string
	opts Options
	log  *zap.Logger

	mu         sync.Mutex
	state      State
	source     monitor.TraceSource
	classifier *guard.Classifier
	kills      *killlog.Log
	final      []model.KillRecord

	inspector   *analysis.TypeInspector
	notify      chan model.KillRecord
	done        chan struct{}
	dropped     atomic.Int64
	disposeOnce sync.Once
}

func New(opts Options) *Manager {
	if opts.NotifyBuffer <= 0 {
		opts.NotifyBuffer = 256
	}
	if opts.Killer == nil {
		opts.Killer = blackwhitelist.SystemKiller
	}
	if opts.NewSource == nil {
		opts.NewSource = monitor.New
	}
	if opts.ResolveName == nil {
		opts.ResolveName = sysutil.ProcName
	}
	id := uuid.NewString()
	return &Manager{
		id:        id,
		opts:      opts,
		log:       sysutil.Log.With(zap.String("session", id)),
		inspector: analysis.NewTypeInspector(),
		notify:    make(chan model.KillRecord, opts.NotifyBuffer),
		done:      make(chan struct{}),
	}
}

func (m *Manager) ID() string { return m.id }

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Notifications 按终止顺序投递，worker 结束后关闭
func (m *Manager) Notifications() <-chan model.KillRecord { return m.notify }

// Done 后台处理循环结束时关闭
func (m *Manager) Done() <-chan struct{} { return m.done }

// Start 确认受保护目录后开始消费事件
func (m *Manager) Start(root string) error {
	if root == "" {
		return ErrSetupAbort
	}
	if err := validateRoot(root); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case Active:
		return ErrAlreadyStarted
	case Disposed:
		return ErrDisposed
	}

	kills, err := killlog.Open()
	if err != nil {
		return fmt.Errorf("open kill log: %w", err)
	}
	source, err := m.opts.NewSource(monitor.Options{Root: root, BufferSize: m.opts.ReadBuffer})
	if err != nil {
		kills.Close()
		return fmt.Errorf("start trace session: %w", err)
	}

	// 自身读取文件头时也会产生事件
	reserved := append([]int32{int32(os.Getpid())}, m.opts.ReservedPIDs...)
	enforcer := blackwhitelist.NewEnforcer(blackwhitelist.NewAllowlist(m.opts.Allow...), m.opts.Killer, reserved...)

	m.kills = kills
	m.source = source
	m.classifier = guard.NewClassifier(root, enforcer, m.recordKill).WithNameResolver(m.opts.ResolveName)
	m.state = Active

	m.log.Info("🛡️ Session started",
		zap.String("root", root),
		zap.Strings("allow", m.opts.Allow),
		zap.Int32s("reserved", reserved))

	go m.run(source, m.classifier)
	return nil
}

func validateRoot(root string) error {
	if !filepath.IsAbs(root) {
		return fmt.Errorf("%w: %q", ErrInvalidRoot, root)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %q is not a directory", ErrInvalidRoot, root)
	}
	return nil
}

// run 专用 worker：检测与处置串行执行
func (m *Manager) run(source monitor.TraceSource, c *guard.Classifier) {
	defer close(m.done)
	defer close(m.notify)

	if err := source.Process(c.Handle); err != nil {
		m.log.Error("event processing stopped", zap.Error(err))
	}
	m.log.Info("All done processing events.")
}

// recordKill 在 worker 上执行，记录成功的终止并通知展示层
func (m *Manager) recordKill(ev model.RawIOEvent) {
	rec := model.KillRecord{
		ProcName:  ev.ProcName,
		PID:       ev.PID,
		Path:      ev.Path,
		Kind:      ev.Kind,
		TimeStamp: time.Now(),
	}
	if res, err := m.inspector.Inspect(ev.Path); err == nil {
		rec.FileType = res.Label()
	}

	rec, err := m.kills.Append(rec)
	if err != nil {
		m.log.Error("failed to append kill record", zap.Error(err))
	}

	m.log.Warn("💀 Process terminated",
		zap.String("process", rec.ProcName),
		zap.Int32("pid", rec.PID),
		zap.String("op", rec.Kind.String()),
		zap.String("file", rec.Path),
		zap.String("type", rec.FileType))

	select {
	case m.notify <- rec:
	default:
		// 展示层跟不上，记录仍在 kill log 中
		m.dropped.Add(1)
		m.log.Warn("notification dropped, presentation layer is behind", zap.Int64("seq", rec.Seq))
	}
}

// Kills 当前会话的终止记录
func (m *Manager) Kills() ([]model.KillRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case Uninitialized:
		return nil, nil
	case Disposed:
		return append([]model.KillRecord(nil), m.final...), nil
	}
	return m.kills.All()
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	c := m.classifier
	m.mu.Unlock()

	var s Stats
	if c != nil {
		s.Snapshot = c.Stats().Snapshot()
	}
	s.DroppedNotifications = m.dropped.Load()
	return s
}

// Dispose 只执行一次；从未启动时也可调用
func (m *Manager) Dispose() error {
	var err error
	m.disposeOnce.Do(func() {
		m.mu.Lock()
		prev := m.state
		m.state = Disposed
		source, kills := m.source, m.kills
		m.mu.Unlock()

		if prev != Active {
			close(m.notify)
			close(m.done)
			return
		}

		if stopErr := source.Stop(); stopErr != nil {
			err = fmt.Errorf("stop trace session: %w", stopErr)
		}
		<-m.done

		final, allErr := kills.All()
		if allErr != nil {
			m.log.Error("failed to snapshot kill log", zap.Error(allErr))
		}
		perProcess, countErr := kills.CountByProcess()
		if countErr != nil {
			m.log.Error("failed to count kill records", zap.Error(countErr))
		}
		m.mu.Lock()
		m.final = final
		m.mu.Unlock()
		if closeErr := kills.Close(); closeErr != nil && err == nil {
			err = closeErr
		}

		st := m.Stats()
		m.log.Info("Session disposed",
			zap.Int64("events", st.Events),
			zap.Int64("hits", st.Hits),
			zap.Int64("kills", st.Kills),
			zap.Int64("allowed", st.Allowed),
			zap.Int64("reserved", st.Reserved),
			zap.Int64("failures", st.Failures),
			zap.Int64("dropped_notifications", st.DroppedNotifications),
			zap.Any("kills_by_process", perProcess))
	})
	return err
}
