package plugin

import (
	"context"
	"encoding/binary"
	"errors"
	"os/exec"
	"unicode/utf8"

	"github.com/mattn/go-shellwords"
	"github.com/tetratelabs/wazero/api"

	"github.com/tessera-wm/tessera/internal/corelog"
	"github.com/tessera-wm/tessera/internal/metrics"
	"github.com/tessera-wm/tessera/internal/plugin/errcode"
	"github.com/tessera-wm/tessera/internal/subscription"
	"github.com/tessera-wm/tessera/internal/windowsystem"
	"github.com/tessera-wm/tessera/internal/wire"
)

// bindHostModule registers the §4.4.2 host-call ABI under import module
// "env". WASM has no i16 value type, so the wire spec's i16 fields
// (window x/y) cross the ABI as i32 and are narrowed here.
func (h *Host) bindHostModule(ctx context.Context) (api.Module, error) {
	return h.runtime.NewHostModuleBuilder("env").
		NewFunctionBuilder().WithFunc(h.hostSubscribe).Export("subscribe").
		NewFunctionBuilder().WithFunc(h.hostUnsubscribe).Export("unsubscribe").
		NewFunctionBuilder().WithFunc(h.hostEventLen).Export("event_len").
		NewFunctionBuilder().WithFunc(h.hostEventRead).Export("event_read").
		NewFunctionBuilder().WithFunc(h.hostWindowMove).Export("window_move").
		NewFunctionBuilder().WithFunc(h.hostWindowResize).Export("window_resize").
		NewFunctionBuilder().WithFunc(h.hostWindowMoveResize).Export("window_move_resize").
		NewFunctionBuilder().WithFunc(h.hostWindowFocus).Export("window_focus").
		NewFunctionBuilder().WithFunc(h.hostWindowGetProperties).Export("window_get_properties").
		NewFunctionBuilder().WithFunc(h.hostWindowClose).Export("window_close").
		NewFunctionBuilder().WithFunc(h.hostSpawn).Export("spawn").
		NewFunctionBuilder().WithFunc(h.hostDebugLog).Export("debug_log").
		Instantiate(ctx)
}

func (h *Host) hostSubscribe(ctx context.Context, mod api.Module, ptr, length uint32) int32 {
	id := h.pluginIDFor(mod)
	buf, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return int32(errcode.MemoryAccessFailure)
	}
	sub, err := wire.DecodeSubscription(buf)
	if err != nil {
		return int32(errcode.BadArgument)
	}
	h.index.Subscribe(subscription.PluginID(id), sub)
	return int32(errcode.Success)
}

func (h *Host) hostUnsubscribe(ctx context.Context, mod api.Module, ptr, length uint32) int32 {
	id := h.pluginIDFor(mod)
	buf, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return int32(errcode.MemoryAccessFailure)
	}
	sub, err := wire.DecodeSubscription(buf)
	if err != nil {
		return int32(errcode.BadArgument)
	}
	h.index.Unsubscribe(subscription.PluginID(id), sub)
	return int32(errcode.Success)
}

func (h *Host) hostEventLen(ctx context.Context, mod api.Module) uint32 {
	id := h.pluginIDFor(mod)
	return uint32(h.queues.PeekLen(id))
}

func (h *Host) hostEventRead(ctx context.Context, mod api.Module, ptr, length, offset uint32) int32 {
	id := h.pluginIDFor(mod)
	mem := mod.Memory()

	if length > 0 {
		if _, ok := mem.Read(ptr, length); !ok {
			return int32(errcode.MemoryAccessFailure)
		}
	}

	buf := make([]byte, length)
	n, err := h.queues.Read(id, int(offset), buf)
	if err != nil {
		return int32(errcode.BadArgument)
	}
	if n > 0 && !mem.Write(ptr, buf[:n]) {
		return int32(errcode.MemoryAccessFailure)
	}
	return int32(n)
}

func (h *Host) hostWindowMove(ctx context.Context, mod api.Module, windowID uint32, x, y int32) int32 {
	xi, yi := int16(x), int16(y)
	return h.errToCode(mod, "window_move", h.sink.ConfigureWindow(windowID, &xi, &yi, nil, nil))
}

func (h *Host) hostWindowResize(ctx context.Context, mod api.Module, windowID, width, height uint32) int32 {
	w16, h16 := uint16(width), uint16(height)
	return h.errToCode(mod, "window_resize", h.sink.ConfigureWindow(windowID, nil, nil, &w16, &h16))
}

func (h *Host) hostWindowMoveResize(ctx context.Context, mod api.Module, windowID uint32, x, y int32, width, height uint32) int32 {
	xi, yi, w16, h16 := int16(x), int16(y), uint16(width), uint16(height)
	return h.errToCode(mod, "window_move_resize", h.sink.ConfigureWindow(windowID, &xi, &yi, &w16, &h16))
}

func (h *Host) hostWindowFocus(ctx context.Context, mod api.Module, windowID uint32) int32 {
	return h.errToCode(mod, "window_focus", h.sink.FocusWindow(windowID))
}

func (h *Host) hostWindowGetProperties(ctx context.Context, mod api.Module, windowID, xPtr, yPtr, widthPtr, heightPtr uint32) int32 {
	geom, err := h.sink.WindowGeometry(windowID)
	if err != nil {
		return h.errToCode(mod, "window_get_properties", err)
	}

	mem := mod.Memory()
	var buf [2]byte
	write := func(ptr uint32, v uint16) bool {
		binary.LittleEndian.PutUint16(buf[:], v)
		return mem.Write(ptr, buf[:])
	}
	if !write(xPtr, uint16(geom.X)) || !write(yPtr, uint16(geom.Y)) ||
		!write(widthPtr, geom.Width) || !write(heightPtr, geom.Height) {
		return int32(errcode.MemoryAccessFailure)
	}
	return int32(errcode.Success)
}

func (h *Host) hostWindowClose(ctx context.Context, mod api.Module, windowID uint32) int32 {
	return h.errToCode(mod, "window_close", h.sink.CloseWindow(windowID))
}

func (h *Host) hostSpawn(ctx context.Context, mod api.Module, ptr, length uint32) int32 {
	id := h.pluginIDFor(mod)
	raw, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return int32(errcode.MemoryAccessFailure)
	}
	if !utf8.Valid(raw) {
		return int32(errcode.BadArgument)
	}

	args, err := shellwords.Parse(string(raw))
	if err != nil || len(args) == 0 {
		return int32(errcode.BadArgument)
	}

	cmd := exec.Command(args[0], args[1:]...)
	if err := cmd.Start(); err != nil {
		corelog.WithPluginID(id).Warn().Str("host_call", "spawn").Err(err).Msg("spawn failed")
		metrics.PluginErrorsTotal.WithLabelValues(id, "spawn").Inc()
		return int32(errcode.Execution)
	}
	go cmd.Wait() //nolint:errcheck // fire-and-forget per spec; only reaps to avoid zombies

	corelog.WithPluginID(id).Info().Strs("argv", args).Msg("spawned child process")
	return int32(errcode.Success)
}

func (h *Host) hostDebugLog(ctx context.Context, mod api.Module, ptr, length uint32) int32 {
	id := h.pluginIDFor(mod)
	raw, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return int32(errcode.MemoryAccessFailure)
	}
	if !utf8.Valid(raw) {
		return int32(errcode.BadArgument)
	}
	corelog.WithPluginID(id).Info().Msg(string(raw))
	return int32(errcode.Success)
}

func (h *Host) errToCode(mod api.Module, call string, err error) int32 {
	if err == nil {
		return int32(errcode.Success)
	}
	id := h.pluginIDFor(mod)
	if errors.Is(err, windowsystem.ErrWindowNotFound) {
		return int32(errcode.WindowNotFound)
	}
	corelog.WithPluginID(id).Warn().Str("host_call", call).Err(err).Msg("host call failed")
	metrics.PluginErrorsTotal.WithLabelValues(id, call).Inc()
	return int32(errcode.Unknown)
}
