package monitor

import (
	"errors"

	"github.com/Hara602/folderSentry/internal/model"
)

var (
	ErrUnsupported = errors.New("kernel file-access tracing is not supported on this platform")
	ErrConsumed    = errors.New("trace source already consumed")
)

// TraceSource 系统范围的文件访问事件流，只能消费一次
// 事件的 ProcName 可能为空，需要时由消费者按 PID 查询
type TraceSource interface {
	// Process 在当前 goroutine 上逐个回调事件，直到 Stop 被调用
	Process(handle func(model.RawIOEvent)) error
	// Stop 可重复调用
	Stop() error
}

// Options 订阅参数
type Options struct {
	Root       string // 用于确定要标记的文件系统，不做路径过滤
	BufferSize int    // 单次 read 的缓冲字节数
}

func New(opts Options) (TraceSource, error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 64 * 1024
	}
	return newMonitor(opts)
}
