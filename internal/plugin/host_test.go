package plugin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-wm/tessera/internal/audit"
	"github.com/tessera-wm/tessera/internal/queue"
	"github.com/tessera-wm/tessera/internal/subscription"
	"github.com/tessera-wm/tessera/internal/windowsystem"
	"github.com/tessera-wm/tessera/internal/windowsystem/noop"
	"github.com/tessera-wm/tessera/internal/wire"
)

// minimalWASM is the smallest valid module exporting linear memory (1 page)
// and a no-op "handle" function, hand-assembled from the WASM binary format
// spec: magic, version, then type/function/memory/export/code sections for
// a single `() -> ()` function whose body is just `end`.
var minimalWASM = []byte{
	0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00, // \0asm, version 1
	0x01, 0x04, 0x01, 0x60, 0x00, 0x00, // type section: () -> ()
	0x03, 0x02, 0x01, 0x00, // function section: fn0 uses type0
	0x05, 0x03, 0x01, 0x00, 0x01, // memory section: 1 memory, min 1 page
	0x07, 0x13, 0x02, // export section: 2 exports
	0x06, 0x6D, 0x65, 0x6D, 0x6F, 0x72, 0x79, 0x02, 0x00, // "memory" -> mem 0
	0x06, 0x68, 0x61, 0x6E, 0x64, 0x6C, 0x65, 0x00, 0x00, // "handle" -> func 0
	0x0A, 0x04, 0x01, 0x02, 0x00, 0x0B, // code section: fn0 body = [end]
}

func newTestHost(t *testing.T) (*Host, *subscription.Index, *queue.Queues) {
	t.Helper()
	ctx := context.Background()
	cmds := make(chan windowsystem.Command, windowsystem.CommandChannelCapacity)
	idx := subscription.New(cmds)
	q := queue.New(0)
	sink := noop.NewSink()

	h, err := NewHost(ctx, idx, q, sink, nil)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close(ctx) })

	return h, idx, q
}

func writeWASMFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoadFileAssignsBasenameWhenNoIDExport(t *testing.T) {
	h, _, _ := newTestHost(t)
	dir := t.TempDir()
	path := writeWASMFile(t, dir, "noop.wasm", minimalWASM)

	require.NoError(t, h.LoadFile(context.Background(), path))
	assert.ElementsMatch(t, []string{"noop"}, h.Loaded())
}

func TestLoadFileRejectsInvalidWasm(t *testing.T) {
	h, _, _ := newTestHost(t)
	dir := t.TempDir()
	path := writeWASMFile(t, dir, "bad.wasm", []byte("not wasm at all"))

	err := h.LoadFile(context.Background(), path)
	assert.Error(t, err)
	assert.Empty(t, h.Loaded())
}

func TestLoadFileReplacesDuplicatePluginID(t *testing.T) {
	h, _, _ := newTestHost(t)
	dirA, dirB := t.TempDir(), t.TempDir()
	pathA := writeWASMFile(t, dirA, "same.wasm", minimalWASM)
	pathB := writeWASMFile(t, dirB, "same.wasm", minimalWASM)

	require.NoError(t, h.LoadFile(context.Background(), pathA))
	require.NoError(t, h.LoadFile(context.Background(), pathB))

	assert.ElementsMatch(t, []string{"same"}, h.Loaded())
}

func TestLoadDirSkipsBadFilesAndLoadsGoodOnes(t *testing.T) {
	h, _, _ := newTestHost(t)
	dir := t.TempDir()
	writeWASMFile(t, dir, "good.wasm", minimalWASM)
	writeWASMFile(t, dir, "bad.wasm", []byte("garbage"))

	require.NoError(t, h.LoadDir(context.Background(), dir))
	assert.ElementsMatch(t, []string{"good"}, h.Loaded())
}

// TestDispatchEnqueuesBeforeInvokingHandle checks the enqueue pass of the
// two-pass dispatch algorithm: a subscribed plugin's queue holds the event
// after Dispatch returns. Its no-op handle() never calls event_read, so the
// test does not observe the order of enqueue and handle() itself.
func TestDispatchEnqueuesBeforeInvokingHandle(t *testing.T) {
	h, idx, q := newTestHost(t)
	dir := t.TempDir()
	path := writeWASMFile(t, dir, "watcher.wasm", minimalWASM)
	require.NoError(t, h.LoadFile(context.Background(), path))

	ev := wire.KeyPressEvent(wire.Key{ModMask: 0x40, Keycode: 36})
	idx.Subscribe("watcher", wire.Subscription{Event: wire.FromEvent(ev)})

	h.Dispatch(context.Background(), ev)

	assert.NotZero(t, q.PeekLen("watcher"))
}

func TestDispatchWithNoSubscribersIsANoop(t *testing.T) {
	h, _, _ := newTestHost(t)
	assert.NotPanics(t, func() {
		h.Dispatch(context.Background(), wire.WindowAddEvent(7))
	})
}

// TestDispatchMissingInstanceLogsAndContinues covers a subscriber entry
// with no corresponding loaded instance (e.g. a plugin that crashed
// mid-session in a future version); Dispatch must not panic.
func TestDispatchMissingInstanceLogsAndContinues(t *testing.T) {
	h, idx, _ := newTestHost(t)
	idx.Subscribe("ghost", wire.Subscription{Event: wire.WindowAddSub()})

	assert.NotPanics(t, func() {
		h.Dispatch(context.Background(), wire.WindowAddEvent(1))
	})
}

// TestLoadDirFailureIsAuditedAsFault covers SPEC_FULL.md §10's audit trail
// promise that plugin faults, not just Commands, are recorded.
func TestLoadDirFailureIsAuditedAsFault(t *testing.T) {
	ctx := context.Background()
	auditLog, err := audit.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { auditLog.Close() })

	cmds := make(chan windowsystem.Command, windowsystem.CommandChannelCapacity)
	h, err := NewHost(ctx, subscription.New(cmds), queue.New(0), noop.NewSink(), auditLog)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close(ctx) })

	dir := t.TempDir()
	writeWASMFile(t, dir, "bad.wasm", []byte("garbage"))
	require.NoError(t, h.LoadDir(ctx, dir))

	records, err := auditLog.Tail(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, audit.KindPluginFault, records[0].Kind)
	assert.Equal(t, "bad.wasm", records[0].PluginID)
}

// TestDispatchMissingInstanceIsAuditedAsFault covers dispatch.go's
// missing-instance path writing to the audit log when one is attached.
func TestDispatchMissingInstanceIsAuditedAsFault(t *testing.T) {
	ctx := context.Background()
	auditLog, err := audit.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { auditLog.Close() })

	cmds := make(chan windowsystem.Command, windowsystem.CommandChannelCapacity)
	idx := subscription.New(cmds)
	h, err := NewHost(ctx, idx, queue.New(0), noop.NewSink(), auditLog)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close(ctx) })

	idx.Subscribe("ghost", wire.Subscription{Event: wire.WindowAddSub()})
	h.Dispatch(ctx, wire.WindowAddEvent(1))

	records, err := auditLog.Tail(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, audit.KindPluginFault, records[0].Kind)
	assert.Equal(t, "ghost", records[0].PluginID)
}
