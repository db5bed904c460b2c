package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"

	"github.com/tessera-wm/tessera/internal/plugin/errcode"
	"github.com/tessera-wm/tessera/internal/subscription"
	"github.com/tessera-wm/tessera/internal/wire"
)

// loadTestModule loads minimalWASM under h and returns its resolved
// PluginID and the api.Module so tests can call host-call handlers directly
// with the exact guest memory those handlers would read and write.
func loadTestModule(t *testing.T, h *Host, name string) (string, api.Module) {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	path := writeWASMFile(t, dir, name+".wasm", minimalWASM)
	require.NoError(t, h.LoadFile(ctx, path))

	h.mu.RLock()
	inst := h.instances[name]
	h.mu.RUnlock()
	require.NotNil(t, inst, "plugin %s not registered", name)
	return name, inst.module
}

func writeGuestMemory(t *testing.T, mod api.Module, ptr uint32, data []byte) {
	t.Helper()
	require.True(t, mod.Memory().Write(ptr, data))
}

func TestHostWindowMoveUnknownWindowReturnsWindowNotFound(t *testing.T) {
	h, _, _ := newTestHost(t)
	_, mod := loadTestModule(t, h, "mover")

	code := h.hostWindowMove(context.Background(), mod, 99, 10, 20)
	assert.Equal(t, int32(errcode.WindowNotFound), code)
}

func TestHostWindowResizeUnknownWindowReturnsWindowNotFound(t *testing.T) {
	h, _, _ := newTestHost(t)
	_, mod := loadTestModule(t, h, "resizer")

	code := h.hostWindowResize(context.Background(), mod, 99, 640, 480)
	assert.Equal(t, int32(errcode.WindowNotFound), code)
}

func TestHostWindowFocusUnknownWindowReturnsWindowNotFound(t *testing.T) {
	h, _, _ := newTestHost(t)
	_, mod := loadTestModule(t, h, "focuser")

	code := h.hostWindowFocus(context.Background(), mod, 99)
	assert.Equal(t, int32(errcode.WindowNotFound), code)
}

func TestHostWindowCloseUnknownWindowReturnsWindowNotFound(t *testing.T) {
	h, _, _ := newTestHost(t)
	_, mod := loadTestModule(t, h, "closer")

	code := h.hostWindowClose(context.Background(), mod, 99)
	assert.Equal(t, int32(errcode.WindowNotFound), code)
}

func TestHostWindowGetPropertiesUnknownWindowReturnsWindowNotFound(t *testing.T) {
	h, _, _ := newTestHost(t)
	_, mod := loadTestModule(t, h, "prober")

	code := h.hostWindowGetProperties(context.Background(), mod, 99, 0, 4, 8, 12)
	assert.Equal(t, int32(errcode.WindowNotFound), code)
}

func TestHostSpawnEmptyStringReturnsBadArgument(t *testing.T) {
	h, _, _ := newTestHost(t)
	_, mod := loadTestModule(t, h, "spawner")

	code := h.hostSpawn(context.Background(), mod, 0, 0)
	assert.Equal(t, int32(errcode.BadArgument), code)
}

func TestHostSpawnInvalidUTF8ReturnsBadArgument(t *testing.T) {
	h, _, _ := newTestHost(t)
	_, mod := loadTestModule(t, h, "spawner-badutf8")

	writeGuestMemory(t, mod, 0, []byte{0xff, 0xfe, 0xfd})
	code := h.hostSpawn(context.Background(), mod, 0, 3)
	assert.Equal(t, int32(errcode.BadArgument), code)
}

func TestHostSpawnStartsProcess(t *testing.T) {
	h, _, _ := newTestHost(t)
	_, mod := loadTestModule(t, h, "spawner-ok")

	argv := []byte("/bin/true")
	writeGuestMemory(t, mod, 0, argv)
	code := h.hostSpawn(context.Background(), mod, 0, uint32(len(argv)))
	assert.Equal(t, int32(errcode.Success), code)
}

func TestHostDebugLogValidUTF8ReturnsSuccess(t *testing.T) {
	h, _, _ := newTestHost(t)
	_, mod := loadTestModule(t, h, "logger")

	msg := []byte("hello from guest")
	writeGuestMemory(t, mod, 0, msg)
	code := h.hostDebugLog(context.Background(), mod, 0, uint32(len(msg)))
	assert.Equal(t, int32(errcode.Success), code)
}

func TestHostDebugLogInvalidUTF8ReturnsBadArgument(t *testing.T) {
	h, _, _ := newTestHost(t)
	_, mod := loadTestModule(t, h, "logger-badutf8")

	writeGuestMemory(t, mod, 0, []byte{0xff, 0xfe})
	code := h.hostDebugLog(context.Background(), mod, 0, 2)
	assert.Equal(t, int32(errcode.BadArgument), code)
}

func TestHostSubscribeThenEventLenAndRead(t *testing.T) {
	h, idx, q := newTestHost(t)
	id, mod := loadTestModule(t, h, "subscriber")

	sub := wire.Subscription{Event: wire.WindowAddSub()}
	buf := sub.EncodeToSlice()
	writeGuestMemory(t, mod, 0, buf)

	code := h.hostSubscribe(context.Background(), mod, 0, uint32(len(buf)))
	require.Equal(t, int32(errcode.Success), code)
	assert.Equal(t, []subscription.PluginID{subscription.PluginID(id)}, idx.Subscribers(wire.WindowAddEvent(1)))

	ev := wire.WindowAddEvent(1)
	q.Enqueue(id, ev)

	gotLen := h.hostEventLen(context.Background(), mod)
	assert.Equal(t, uint32(ev.EncodedSize()), gotLen)

	n := h.hostEventRead(context.Background(), mod, 100, uint32(ev.EncodedSize()), 0)
	require.Equal(t, int32(ev.EncodedSize()), n)

	read, ok := mod.Memory().Read(100, uint32(n))
	require.True(t, ok)

	decoded, err := wire.DecodeEvent(read)
	require.NoError(t, err)
	assert.Equal(t, ev, decoded)
}

func TestHostUnsubscribeRemovesSubscriber(t *testing.T) {
	h, idx, _ := newTestHost(t)
	id, mod := loadTestModule(t, h, "unsubscriber")

	sub := wire.Subscription{Event: wire.WindowAddSub()}
	buf := sub.EncodeToSlice()
	writeGuestMemory(t, mod, 0, buf)

	require.Equal(t, int32(errcode.Success), h.hostSubscribe(context.Background(), mod, 0, uint32(len(buf))))
	require.Equal(t, []subscription.PluginID{subscription.PluginID(id)}, idx.Subscribers(wire.WindowAddEvent(1)))

	require.Equal(t, int32(errcode.Success), h.hostUnsubscribe(context.Background(), mod, 0, uint32(len(buf))))
	assert.Empty(t, idx.Subscribers(wire.WindowAddEvent(1)))
}

func TestHostSubscribeBadMemoryPointerReturnsMemoryAccessFailure(t *testing.T) {
	h, _, _ := newTestHost(t)
	_, mod := loadTestModule(t, h, "bad-ptr")

	code := h.hostSubscribe(context.Background(), mod, 1<<20, 8)
	assert.Equal(t, int32(errcode.MemoryAccessFailure), code)
}
