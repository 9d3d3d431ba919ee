package guard

import (
	"errors"
	"testing"

	"github.com/Hara602/folderSentry/internal/blackwhitelist"
	"github.com/Hara602/folderSentry/internal/model"
	"github.com/Hara602/folderSentry/internal/sysutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const root = "/guard/vault"

type fakeKiller struct {
	calls []int32
	errs  map[int32]error
}

func (k *fakeKiller) Kill(pid int32) error {
	k.calls = append(k.calls, pid)
	return k.errs[pid]
}

func newPipeline(k *fakeKiller) (*Classifier, *[]model.RawIOEvent) {
	var killed []model.RawIOEvent
	enf := blackwhitelist.NewEnforcer(blackwhitelist.DefaultAllowlist(), k)
	c := NewClassifier(root, enf, func(ev model.RawIOEvent) { killed = append(killed, ev) })
	return c, &killed
}

func TestClassifier_KillsUnderProtection(t *testing.T) {
	k := &fakeKiller{}
	c, killed := newPipeline(k)

	c.Handle(model.RawIOEvent{Kind: model.KindRead, Path: "/guard/vault/secrets.txt", PID: 1234, ProcName: "Chrome"})

	assert.Equal(t, []int32{1234}, k.calls)
	require.Len(t, *killed, 1)
	assert.Equal(t, "Chrome", (*killed)[0].ProcName)
	assert.Equal(t, int64(1), c.Stats().Kills.Load())
}

func TestClassifier_AllKindsShareLogic(t *testing.T) {
	kinds := []model.EventKind{model.KindDirEnum, model.KindRead, model.KindWrite, model.KindQueryInfo}
	for _, kind := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			k := &fakeKiller{}
			c, killed := newPipeline(k)

			c.Handle(model.RawIOEvent{Kind: kind, Path: root, PID: 77, ProcName: "ls"})
			c.Handle(model.RawIOEvent{Kind: kind, Path: "/elsewhere", PID: 78, ProcName: "ls"})

			assert.Equal(t, []int32{77}, k.calls)
			assert.Len(t, *killed, 1)
		})
	}
}

func TestClassifier_OutsideIsNoop(t *testing.T) {
	k := &fakeKiller{}
	c, killed := newPipeline(k)

	c.Handle(model.RawIOEvent{Kind: model.KindWrite, Path: "/guard/other.txt", PID: 1234, ProcName: "Chrome"})
	c.Handle(model.RawIOEvent{Kind: model.KindWrite, Path: "/guard", PID: 1234, ProcName: "Chrome"})

	assert.Empty(t, k.calls)
	assert.Empty(t, *killed)
	snap := c.Stats().Snapshot()
	assert.Equal(t, int64(2), snap.Events)
	assert.Zero(t, snap.Hits)
}

func TestClassifier_SiblingPrefixIsProtected(t *testing.T) {
	k := &fakeKiller{}
	c, _ := newPipeline(k)

	c.Handle(model.RawIOEvent{Kind: model.KindRead, Path: "/guard/vaultage/file.txt", PID: 55, ProcName: "cat"})
	assert.Equal(t, []int32{55}, k.calls)
}

func TestClassifier_AllowlistedNotKilled(t *testing.T) {
	k := &fakeKiller{}
	c, killed := newPipeline(k)

	c.Handle(model.RawIOEvent{Kind: model.KindRead, Path: "/guard/vault/a", PID: 1234, ProcName: "notepad"})

	assert.Empty(t, k.calls)
	assert.Empty(t, *killed)
	assert.Equal(t, int64(1), c.Stats().Allowed.Load())
}

func TestClassifier_ReservedNotKilled(t *testing.T) {
	k := &fakeKiller{}
	c, _ := newPipeline(k)

	c.Handle(model.RawIOEvent{Kind: model.KindRead, Path: "/guard/vault/a", PID: 0, ProcName: "Idle"})
	c.Handle(model.RawIOEvent{Kind: model.KindRead, Path: "/guard/vault/a", PID: 4, ProcName: "System"})

	assert.Empty(t, k.calls)
	assert.Equal(t, int64(2), c.Stats().Reserved.Load())
}

func TestClassifier_FailureDoesNotStopProcessing(t *testing.T) {
	k := &fakeKiller{errs: map[int32]error{111: sysutil.ErrNoSuchProcess}}
	c, killed := newPipeline(k)

	require.NotPanics(t, func() {
		c.Handle(model.RawIOEvent{Kind: model.KindRead, Path: "/guard/vault/a", PID: 111, ProcName: "ghost"})
	})
	c.Handle(model.RawIOEvent{Kind: model.KindRead, Path: "/guard/vault/b", PID: 222, ProcName: "Chrome"})

	assert.Equal(t, []int32{111, 222}, k.calls)
	require.Len(t, *killed, 1)
	assert.Equal(t, "Chrome", (*killed)[0].ProcName)
	assert.Equal(t, int64(1), c.Stats().Failures.Load())
}

type panickyEnforcer struct{ calls int }

func (p *panickyEnforcer) Enforce(pid int32, name string) (blackwhitelist.Outcome, error) {
	p.calls++
	if pid == 1 {
		panic("boom")
	}
	return blackwhitelist.Failed, errors.New("nope")
}

func TestClassifier_PanicIsolated(t *testing.T) {
	p := &panickyEnforcer{}
	c := NewClassifier(root, p, nil)

	require.NotPanics(t, func() {
		c.Handle(model.RawIOEvent{Path: "/guard/vault/x", PID: 1})
		c.Handle(model.RawIOEvent{Path: "/guard/vault/y", PID: 2})
	})
	assert.Equal(t, 2, p.calls)
	assert.Equal(t, int64(1), c.Stats().Panics.Load())
}

func TestClassifier_ResolvesNameOnlyOnHit(t *testing.T) {
	k := &fakeKiller{}
	c, killed := newPipeline(k)

	var lookups []int32
	c.WithNameResolver(func(pid int32) string {
		lookups = append(lookups, pid)
		if pid == 30 {
			return "Notepad"
		}
		return "intruder"
	})

	c.Handle(model.RawIOEvent{Kind: model.KindRead, Path: "/usr/lib/libc.so", PID: 10})
	c.Handle(model.RawIOEvent{Kind: model.KindRead, Path: "/guard/vault/a", PID: 20})
	c.Handle(model.RawIOEvent{Kind: model.KindRead, Path: "/guard/vault/b", PID: 30})
	c.Handle(model.RawIOEvent{Kind: model.KindRead, Path: "/guard/vault/c", PID: 40, ProcName: "cat"})

	assert.Equal(t, []int32{20, 30}, lookups)
	assert.Equal(t, []int32{20, 40}, k.calls)
	require.Len(t, *killed, 2)
	assert.Equal(t, "intruder", (*killed)[0].ProcName)
	assert.Equal(t, "cat", (*killed)[1].ProcName)
}
