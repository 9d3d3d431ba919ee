//go:build linux

package monitor

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Hara602/folderSentry/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestKindFor(t *testing.T) {
	tests := []struct {
		name  string
		mask  uint64
		isDir bool
		want  model.EventKind
	}{
		{"read file", unix.FAN_ACCESS, false, model.KindRead},
		{"list dir", unix.FAN_ACCESS, true, model.KindDirEnum},
		{"open dir", unix.FAN_OPEN, true, model.KindDirEnum},
		{"write file", unix.FAN_MODIFY, false, model.KindWrite},
		{"open file", unix.FAN_OPEN, false, model.KindQueryInfo},
		{"merged read write", unix.FAN_ACCESS | unix.FAN_MODIFY, false, model.KindWrite},
		{"merged open read", unix.FAN_OPEN | unix.FAN_ACCESS, false, model.KindRead},
		{"merged open read write", unix.FAN_OPEN | unix.FAN_ACCESS | unix.FAN_MODIFY, false, model.KindWrite},
		{"unrelated", unix.FAN_CLOSE_WRITE, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, kindFor(tt.mask, tt.isDir))
		})
	}
}

func encode(t *testing.T, mds ...model.FanotifyEventMetadata) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, md := range mds {
		md.EventLen = model.FanotifyEventMetadataSize
		md.MetadataLen = model.FanotifyEventMetadataSize
		require.NoError(t, binary.Write(&buf, binary.NativeEndian, md))
	}
	return buf.Bytes()
}

func TestParseEvents(t *testing.T) {
	buf := encode(t,
		model.FanotifyEventMetadata{Vers: 3, Mask: unix.FAN_ACCESS, Fd: 10, Pid: 100},
		model.FanotifyEventMetadata{Vers: 3, Mask: unix.FAN_MODIFY, Fd: 11, Pid: 200},
	)
	// 截断的尾部不应被解析
	buf = append(buf, 0x01, 0x02, 0x03)

	var got []model.FanotifyEventMetadata
	parseEvents(buf, func(md model.FanotifyEventMetadata) { got = append(got, md) })

	require.Len(t, got, 2)
	assert.Equal(t, int32(100), got[0].Pid)
	assert.Equal(t, int32(10), got[0].Fd)
	assert.Equal(t, uint64(unix.FAN_MODIFY), got[1].Mask)
	assert.Equal(t, int32(200), got[1].Pid)
}

func TestParseEvents_BadLength(t *testing.T) {
	buf := encode(t, model.FanotifyEventMetadata{Vers: 3, Pid: 1})
	binary.NativeEndian.PutUint32(buf[0:4], 4096) // event_len 超出缓冲区

	called := false
	parseEvents(buf, func(model.FanotifyEventMetadata) { called = true })
	assert.False(t, called)
}

func TestFanotifyMonitor_Live(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("fanotify requires root")
	}
	dir := t.TempDir()
	target := filepath.Join(dir, "secret.txt")
	require.NoError(t, os.WriteFile(target, []byte("top secret"), 0o600))

	src, err := New(Options{Root: dir})
	if err != nil {
		t.Skipf("fanotify unavailable: %v", err)
	}

	var (
		mu   sync.Mutex
		seen []model.RawIOEvent
	)
	done := make(chan error, 1)
	go func() {
		done <- src.Process(func(ev model.RawIOEvent) {
			if !strings.HasPrefix(ev.Path, dir) {
				return
			}
			mu.Lock()
			seen = append(seen, ev)
			mu.Unlock()
		})
	}()

	require.Eventually(t, func() bool {
		_, _ = os.ReadFile(target)
		mu.Lock()
		defer mu.Unlock()
		for _, ev := range seen {
			if ev.Path == target && ev.Kind == model.KindRead && ev.PID == int32(os.Getpid()) {
				return true
			}
		}
		return false
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, src.Stop())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Process did not return after Stop")
	}

	assert.ErrorIs(t, src.Process(func(model.RawIOEvent) {}), ErrConsumed)
	assert.NoError(t, src.Stop())
}
