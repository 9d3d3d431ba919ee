//go:build linux

package monitor

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/Hara602/folderSentry/internal/model"
	"github.com/Hara602/folderSentry/internal/sysutil"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// 读、写、打开，包含目录本身和子项
const watchMask = unix.FAN_ACCESS |
	unix.FAN_MODIFY |
	unix.FAN_OPEN |
	unix.FAN_ONDIR |
	unix.FAN_EVENT_ON_CHILD

type fanotifyMonitor struct {
	fd   int
	wake [2]int // Stop 通过管道唤醒 poll
	buf  []byte

	mu       sync.Mutex
	consumed bool
	stopped  bool
	done     chan struct{}
}

func newMonitor(opts Options) (TraceSource, error) {
	flags := uint(unix.FAN_CLASS_NOTIF |
		unix.FAN_CLOEXEC |
		unix.FAN_UNLIMITED_QUEUE |
		unix.FAN_UNLIMITED_MARKS)
	eventFlags := uint(unix.O_RDONLY | unix.O_LARGEFILE | unix.O_CLOEXEC)
	fd, err := unix.FanotifyInit(flags, eventFlags)
	if err != nil {
		return nil, fmt.Errorf("fanotify init failed: %w", err)
	}

	if err := markFilesystem(fd, opts.Root); err != nil {
		unix.Close(fd)
		return nil, err
	}

	var wake [2]int
	if err := unix.Pipe2(wake[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("wake pipe: %w", err)
	}

	return &fanotifyMonitor{
		fd:   fd,
		wake: wake,
		buf:  make([]byte, opts.BufferSize),
		done: make(chan struct{}),
	}, nil
}

// markFilesystem 标记受保护目录所在的整个文件系统，路径过滤交给下游
func markFilesystem(fd int, root string) error {
	err := unix.FanotifyMark(fd, unix.FAN_MARK_ADD|unix.FAN_MARK_FILESYSTEM, watchMask, unix.AT_FDCWD, root)
	if err == nil {
		sysutil.Log.Info("fanotify mark installed", zap.String("scope", "filesystem"), zap.String("path", root))
		return nil
	}

	// 退化为挂载点监控
	mountPoint, fsType := sysutil.MountPointOf(root)
	sysutil.Log.Warn("FAN_MARK_FILESYSTEM failed, falling back to mount mark",
		zap.Error(err),
		zap.String("mount", mountPoint),
		zap.String("fstype", fsType))
	err = unix.FanotifyMark(fd, unix.FAN_MARK_ADD|unix.FAN_MARK_MOUNT, watchMask, unix.AT_FDCWD, mountPoint)
	if err != nil {
		return fmt.Errorf("fanotify mark %s failed: %w", root, err)
	}
	return nil
}

func (f *fanotifyMonitor) Process(handle func(model.RawIOEvent)) error {
	f.mu.Lock()
	if f.consumed || f.stopped {
		f.mu.Unlock()
		return ErrConsumed
	}
	f.consumed = true
	f.mu.Unlock()
	defer close(f.done)

	fds := []unix.PollFd{
		{Fd: int32(f.fd), Events: unix.POLLIN},
		{Fd: int32(f.wake[0]), Events: unix.POLLIN},
	}
	for {
		fds[0].Revents, fds[1].Revents = 0, 0
		if _, err := unix.Poll(fds, -1); err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("poll fanotify: %w", err)
		}
		if fds[1].Revents != 0 {
			return nil
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			return fmt.Errorf("fanotify fd error (revents 0x%x)", fds[0].Revents)
		}
		if fds[0].Revents&unix.POLLIN == 0 {
			continue
		}

		n, err := unix.Read(f.fd, f.buf)
		if err != nil {
			if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
				continue
			}
			return fmt.Errorf("read fanotify: %w", err)
		}
		parseEvents(f.buf[:n], func(md model.FanotifyEventMetadata) {
			if ev, ok := f.resolve(md); ok {
				handle(ev)
			}
		})
	}
}

// resolve 把内核元数据转换为 RawIOEvent，并关闭事件携带的 fd
// 进程名留空，由下游在路径命中后再查询
func (f *fanotifyMonitor) resolve(md model.FanotifyEventMetadata) (model.RawIOEvent, bool) {
	if md.Fd == unix.FAN_NOFD {
		if md.Mask&unix.FAN_Q_OVERFLOW != 0 {
			sysutil.Log.Warn("fanotify queue overflow, events were lost")
		}
		return model.RawIOEvent{}, false
	}
	defer unix.Close(int(md.Fd))

	if md.Vers != unix.FANOTIFY_METADATA_VERSION {
		return model.RawIOEvent{}, false
	}

	path, err := os.Readlink("/proc/self/fd/" + strconv.Itoa(int(md.Fd)))
	if err != nil {
		return model.RawIOEvent{}, false
	}

	kind := kindFor(md.Mask, md.Mask&unix.FAN_ONDIR != 0 || isDirFd(int(md.Fd)))
	if kind == 0 {
		return model.RawIOEvent{}, false
	}

	return model.RawIOEvent{
		Kind:      kind,
		Path:      path,
		PID:       md.Pid,
		TimeStamp: time.Now(),
	}, true
}

func (f *fanotifyMonitor) Stop() error {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return nil
	}
	f.stopped = true
	running := f.consumed
	f.mu.Unlock()

	_, _ = unix.Write(f.wake[1], []byte{1})
	if running {
		<-f.done
	}
	return errors.Join(unix.Close(f.fd), unix.Close(f.wake[0]), unix.Close(f.wake[1]))
}

// parseEvents 逐个解析缓冲区中的 fanotify_event_metadata
func parseEvents(buf []byte, fn func(model.FanotifyEventMetadata)) {
	for len(buf) >= model.FanotifyEventMetadataSize {
		var md model.FanotifyEventMetadata
		reader := bytes.NewReader(buf[:model.FanotifyEventMetadataSize])
		if err := binary.Read(reader, binary.NativeEndian, &md); err != nil {
			sysutil.LogSugar.Errorf("fanotify metadata read failed: %v", err)
			return
		}
		if md.EventLen < model.FanotifyEventMetadataSize || int(md.EventLen) > len(buf) {
			return
		}
		fn(md)
		buf = buf[md.EventLen:]
	}
}

// kindFor 一次合并事件只产生一个类别，写优先
func kindFor(mask uint64, isDir bool) model.EventKind {
	switch {
	case mask&unix.FAN_MODIFY != 0:
		return model.KindWrite
	case mask&unix.FAN_ACCESS != 0 && isDir:
		return model.KindDirEnum
	case mask&unix.FAN_ACCESS != 0:
		return model.KindRead
	case mask&unix.FAN_OPEN != 0 && isDir:
		return model.KindDirEnum
	case mask&unix.FAN_OPEN != 0:
		return model.KindQueryInfo
	}
	return 0
}

func isDirFd(fd int) bool {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return false
	}
	return st.Mode&unix.S_IFMT == unix.S_IFDIR
}
