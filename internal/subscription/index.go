// Package subscription implements the Subscription Index: the mapping
// from a SubscriptionEvent to the set of plugins (and their filter
// groups) registered to receive it. The Index tracks first-subscription
// and last-unsubscription transitions and emits Subscribe/Unsubscribe
// Commands on exactly those transitions, so the external event producer
// knows when to start or stop producing a given event type.
package subscription

import (
	"strconv"
	"sync"

	"github.com/tessera-wm/tessera/internal/corelog"
	"github.com/tessera-wm/tessera/internal/metrics"
	"github.com/tessera-wm/tessera/internal/windowsystem"
	"github.com/tessera-wm/tessera/internal/wire"
)

// PluginID identifies a loaded plugin. Opaque, UTF-8, unique per process
// for the process lifetime (spec I1).
type PluginID string

type pluginSubs map[PluginID][]wire.SubscriptionFilterGroup

// Index maps SubscriptionEvent -> plugin -> filter groups. It is
// single-writer/many-reader: subscribers() is called from the dispatcher
// goroutine on every event; subscribe/unsubscribe are called from
// host-call handlers running on that same goroutine, but the lock is
// still held correctly so a future admin/query path can read
// concurrently (spec §5, §9).
type Index struct {
	mu       sync.RWMutex
	subs     map[wire.SubscriptionEvent]pluginSubs
	commands chan<- windowsystem.Command
}

// New creates an Index that emits Subscribe/Unsubscribe transitions onto
// commands. commands must not be nil; sends block if the channel is full,
// per spec §5's bounded command channel.
func New(commands chan<- windowsystem.Command) *Index {
	return &Index{
		subs:     make(map[wire.SubscriptionEvent]pluginSubs),
		commands: commands,
	}
}

// Subscribe registers plugin for sub.Event with sub.Filters. Multiple
// subscriptions by the same plugin to the same event accumulate filter
// groups without deduplication. The first registration for an event
// (across all plugins) emits Command::Subscribe.
func (idx *Index) Subscribe(plugin PluginID, sub wire.Subscription) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	byPlugin, existed := idx.subs[sub.Event]
	if !existed {
		byPlugin = make(pluginSubs)
		idx.subs[sub.Event] = byPlugin
	}
	byPlugin[plugin] = append(byPlugin[plugin], sub.Filters)
	metrics.SubscriptionsActive.WithLabelValues(eventTagLabel(sub.Event.Tag)).Set(float64(activeSubscriberCount(byPlugin)))

	if !existed {
		corelog.WithComponent("subscription.index").Info().
			Uint32("event_tag", sub.Event.Tag).
			Msg("first subscriber: emitting Subscribe command")
		idx.commands <- windowsystem.SubscribeCommand(sub.Event)
	}
}

// Unsubscribe removes sub.Filters from (plugin, sub.Event). An empty
// sub.Filters drops every filter group the plugin has registered for this
// event (full unsubscribe). If the plugin's filter-group list becomes
// empty, its entry is removed; if the event's plugin map becomes empty,
// the event is removed and Command::Unsubscribe is emitted.
func (idx *Index) Unsubscribe(plugin PluginID, sub wire.Subscription) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	byPlugin, ok := idx.subs[sub.Event]
	if !ok {
		return
	}

	groups, ok := byPlugin[plugin]
	if ok {
		if len(sub.Filters) == 0 {
			delete(byPlugin, plugin)
		} else {
			remaining := groups[:0]
			for _, g := range groups {
				if !g.Equal(sub.Filters) {
					remaining = append(remaining, g)
				}
			}
			if len(remaining) == 0 {
				delete(byPlugin, plugin)
			} else {
				byPlugin[plugin] = remaining
			}
		}
	}

	metrics.SubscriptionsActive.WithLabelValues(eventTagLabel(sub.Event.Tag)).Set(float64(activeSubscriberCount(byPlugin)))

	if len(byPlugin) == 0 {
		delete(idx.subs, sub.Event)
		corelog.WithComponent("subscription.index").Info().
			Uint32("event_tag", sub.Event.Tag).
			Msg("last subscriber removed: emitting Unsubscribe command")
		idx.commands <- windowsystem.UnsubscribeCommand(sub.Event)
	}
}

// activeSubscriberCount counts plugins with at least one filter group
// registered for an event.
func activeSubscriberCount(byPlugin pluginSubs) int {
	count := 0
	for _, groups := range byPlugin {
		if len(groups) > 0 {
			count++
		}
	}
	return count
}

func eventTagLabel(tag uint32) string {
	return strconv.FormatUint(uint64(tag), 10)
}

// Subscribers returns every plugin registered for event's projected
// SubscriptionEvent whose filter groups contain at least one group
// satisfied by event. v1's filter vocabulary is empty so every group
// trivially matches: the effect is "every plugin registered for this
// subscription event". The returned slice is a snapshot safe to range
// over after the lock is released.
func (idx *Index) Subscribers(event wire.Event) []PluginID {
	sub := wire.FromEvent(event)

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	byPlugin, ok := idx.subs[sub]
	if !ok {
		return nil
	}

	out := make([]PluginID, 0, len(byPlugin))
	for plugin, groups := range byPlugin {
		if len(groups) > 0 {
			out = append(out, plugin)
		}
	}
	return out
}
