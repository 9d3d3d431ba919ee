package monitor

import (
	"sync"

	"github.com/Hara602/folderSentry/internal/model"
)

// ChannelSource 从 channel 读取事件的 TraceSource，用于回放和测试
type ChannelSource struct {
	events chan model.RawIOEvent
	stop   chan struct{}

	mu       sync.Mutex
	consumed bool
	stopOnce sync.Once
}

func NewChannelSource(buffer int) *ChannelSource {
	return &ChannelSource{
		events: make(chan model.RawIOEvent, buffer),
		stop:   make(chan struct{}),
	}
}

// Emit 在 Stop 之后返回 false
func (c *ChannelSource) Emit(ev model.RawIOEvent) bool {
	select {
	case <-c.stop:
		return false
	default:
	}
	select {
	case c.events <- ev:
		return true
	case <-c.stop:
		return false
	}
}

func (c *ChannelSource) Process(handle func(model.RawIOEvent)) error {
	c.mu.Lock()
	if c.consumed {
		c.mu.Unlock()
		return ErrConsumed
	}
	c.consumed = true
	c.mu.Unlock()

	for {
		select {
		case <-c.stop:
			return nil
		case ev := <-c.events:
			handle(ev)
		}
	}
}

func (c *ChannelSource) Stop() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}
