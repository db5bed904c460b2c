package plugin

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/tessera-wm/tessera/internal/audit"
	"github.com/tessera-wm/tessera/internal/corelog"
	"github.com/tessera-wm/tessera/internal/metrics"
	"github.com/tessera-wm/tessera/internal/queue"
	"github.com/tessera-wm/tessera/internal/subscription"
	"github.com/tessera-wm/tessera/internal/windowsystem"
)

// maxIDLen bounds how far a guest's exported "id" byte array is scanned for
// a NUL terminator, so a malformed export can't make the loader scan all of
// a module's linear memory.
const maxIDLen = 256

type instance struct {
	id     string
	module api.Module
	handle api.Function
}

// Host owns the wazero runtime, the instance store, and the host-call
// bindings that give guests access to the Subscription Index, the per-plugin
// Queues, and the window system. All of Host's public methods are intended
// to run on a single dispatcher goroutine, except Dispatch's internal
// snapshotting which tolerates concurrent LoadFile calls.
type Host struct {
	runtime wazero.Runtime
	env     api.Module

	mu         sync.RWMutex
	instances  map[string]*instance
	idByModule map[api.Module]string

	index  *subscription.Index
	queues *queue.Queues
	sink   windowsystem.CommandSink
	audit  *audit.Log

	anonCounter int64
}

// NewHost creates a Host with a fresh wazero runtime and binds the "env"
// host module. idx, queues and sink must not be nil. auditLog may be nil
// (e.g. "tessera plugins list" has no durable audit trail to write faults
// to), in which case plugin faults are only logged, not recorded.
func NewHost(ctx context.Context, idx *subscription.Index, queues *queue.Queues, sink windowsystem.CommandSink, auditLog *audit.Log) (*Host, error) {
	h := &Host{
		runtime:    wazero.NewRuntime(ctx),
		instances:  make(map[string]*instance),
		idByModule: make(map[api.Module]string),
		index:      idx,
		queues:     queues,
		sink:       sink,
		audit:      auditLog,
	}

	env, err := h.bindHostModule(ctx)
	if err != nil {
		h.runtime.Close(ctx)
		return nil, fmt.Errorf("plugin: bind host imports: %w", err)
	}
	h.env = env
	return h, nil
}

// Close tears down every guest instance and the host module along with the
// underlying wazero runtime.
func (h *Host) Close(ctx context.Context) error {
	return h.runtime.Close(ctx)
}

// LoadDir scans dir non-recursively and loads each regular file as a
// compiled WASM plugin. Per-file failures are logged at WARN and do not
// stop the scan.
func (h *Host) LoadDir(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("plugin: read plugin directory %s: %w", dir, err)
	}

	log := corelog.WithComponent("plugin.host")
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := h.LoadFile(ctx, path); err != nil {
			log.Warn().Str("path", path).Err(err).Msg("skipping plugin")
			h.recordFault(entry.Name(), err.Error())
		}
	}
	return nil
}

// LoadFile compiles, instantiates, and registers a single plugin file. If
// the resulting PluginID was already registered, the earlier instance is
// replaced and the collision is logged as a loader error.
func (h *Host) LoadFile(ctx context.Context, path string) error {
	log := corelog.WithComponent("plugin.host")

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	compiled, err := h.runtime.CompileModule(ctx, data)
	if err != nil {
		return fmt.Errorf("compile %s: %w", path, err)
	}

	basename := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	anonName := fmt.Sprintf("%s#%d", basename, atomic.AddInt64(&h.anonCounter, 1))

	cfg := wazero.NewModuleConfig().WithName(anonName)
	mod, err := h.runtime.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return fmt.Errorf("instantiate %s: %w", path, err)
	}

	id, err := resolvePluginID(mod, basename)
	if err != nil {
		mod.Close(ctx)
		return fmt.Errorf("resolve plugin id for %s: %w", path, err)
	}

	h.mu.Lock()
	h.idByModule[mod] = id
	if prev, exists := h.instances[id]; exists {
		log.Warn().Str("plugin_id", id).Msg("plugin id already loaded; replacing earlier instance")
		delete(h.idByModule, prev.module)
		go prev.module.Close(context.Background())
	}
	inst := &instance{id: id, module: mod, handle: mod.ExportedFunction("handle")}
	h.instances[id] = inst
	h.mu.Unlock()

	if initFn := mod.ExportedFunction("init"); initFn != nil {
		if _, err := initFn.Call(ctx); err != nil {
			log.Warn().Str("plugin_id", id).Err(err).Msg("init trapped")
			h.recordFault(id, fmt.Sprintf("init trapped: %v", err))
		}
	}

	metrics.PluginsLoadedTotal.Inc()
	log.Info().Str("plugin_id", id).Str("path", path).Msg("plugin loaded")
	return nil
}

// resolvePluginID implements spec §4.4.1's id-selection rule: an exported
// "id" global wins if present (read as a NUL-terminated UTF-8 byte array
// from the instance's linear memory at the address it holds); otherwise
// fallback (the file's base name) is used. An exported id that cannot be
// read is an error — the plugin is skipped, not silently defaulted.
func resolvePluginID(mod api.Module, fallback string) (string, error) {
	idGlobal := mod.ExportedGlobal("id")
	if idGlobal == nil {
		return fallback, nil
	}

	ptr := uint32(idGlobal.Get())
	mem := mod.Memory()
	size := mem.Size()
	if ptr >= size {
		return "", fmt.Errorf("id export points outside linear memory")
	}

	scanLen := size - ptr
	if scanLen > maxIDLen {
		scanLen = maxIDLen
	}
	data, ok := mem.Read(ptr, scanLen)
	if !ok {
		return "", fmt.Errorf("id export is not readable")
	}

	nul := bytes.IndexByte(data, 0)
	if nul < 0 {
		return "", fmt.Errorf("id export missing NUL terminator within %d bytes", maxIDLen)
	}
	if !utf8.Valid(data[:nul]) {
		return "", fmt.Errorf("id export is not valid UTF-8")
	}
	return string(data[:nul]), nil
}

// recordFault appends a plugin fault to the audit log, if one is attached.
func (h *Host) recordFault(pluginID, detail string) {
	if h.audit == nil {
		return
	}
	if err := h.audit.RecordPluginFault(pluginID, detail); err != nil {
		corelog.WithComponent("plugin.host").Warn().Err(err).Msg("failed to audit plugin fault")
	}
}

func (h *Host) pluginIDFor(mod api.Module) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.idByModule[mod]
}

// Loaded returns the PluginIDs currently registered in the instance store.
func (h *Host) Loaded() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.instances))
	for id := range h.instances {
		ids = append(ids, id)
	}
	return ids
}
