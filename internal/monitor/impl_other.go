//go:build !linux

package monitor

func newMonitor(opts Options) (TraceSource, error) { return nil, ErrUnsupported }
