package plugin

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/tessera-wm/tessera/internal/corelog"
	"github.com/tessera-wm/tessera/internal/metrics"
	"github.com/tessera-wm/tessera/internal/windowsystem"
	"github.com/tessera-wm/tessera/internal/wire"
)

// ErrEventSourceClosed is returned by Run when the producer's event channel
// closes, which spec §5 treats as a fatal condition for the dispatcher.
var ErrEventSourceClosed = errors.New("plugin: event source closed")

// Run is the dispatcher loop: it owns the instance store for its entire
// lifetime and is the only goroutine that should call Dispatch or LoadFile
// once started, per spec §5's single-threaded cooperative model.
func (h *Host) Run(ctx context.Context, source windowsystem.EventSource) error {
	events := source.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return ErrEventSourceClosed
			}
			h.Dispatch(ctx, ev)
		}
	}
}

// Dispatch implements spec §4.4.3's two-pass algorithm: every subscriber's
// queue is updated before any subscriber's handle() is invoked, so a
// guest's first event_read inside handle() always observes this event even
// when multiple plugins share the subscription.
func (h *Host) Dispatch(ctx context.Context, event wire.Event) {
	log := corelog.WithComponent("plugin.host")
	subs := h.index.Subscribers(event)

	for _, p := range subs {
		h.queues.Enqueue(string(p), event)
	}
	metrics.EventsDispatchedTotal.WithLabelValues(strconv.FormatUint(uint64(event.Tag), 10)).Inc()

	h.mu.RLock()
	snapshot := make(map[string]*instance, len(subs))
	for _, p := range subs {
		if inst, ok := h.instances[string(p)]; ok {
			snapshot[string(p)] = inst
		}
	}
	h.mu.RUnlock()

	for _, p := range subs {
		inst, ok := snapshot[string(p)]
		if !ok {
			log.Error().Str("plugin_id", string(p)).Msg("no instance for subscriber")
			metrics.PluginErrorsTotal.WithLabelValues(string(p), "missing_instance").Inc()
			h.recordFault(string(p), "dispatch: no instance for subscribed plugin")
			continue
		}
		if inst.handle == nil {
			continue
		}
		if _, err := inst.handle.Call(ctx); err != nil {
			log.Warn().Str("plugin_id", string(p)).Err(err).Msg("handle trapped")
			metrics.PluginErrorsTotal.WithLabelValues(string(p), "handle_trap").Inc()
			h.recordFault(string(p), fmt.Sprintf("handle trapped: %v", err))
		}
	}
}
