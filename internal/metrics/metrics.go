// Package metrics exposes tessera's Prometheus instrumentation: package-level
// collectors registered at init, mirroring the teacher's pkg/metrics
// convention of one var block plus a Handler() for wiring into an HTTP mux.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tessera_events_dispatched_total",
			Help: "Total number of events passed to Dispatch, by event tag",
		},
		[]string{"event_tag"},
	)

	QueueDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tessera_queue_events_dropped_total",
			Help: "Total number of events dropped because a plugin's queue was at capacity",
		},
		[]string{"plugin_id"},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tessera_queue_depth",
			Help: "Current number of queued events for a plugin",
		},
		[]string{"plugin_id"},
	)

	PluginErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tessera_plugin_errors_total",
			Help: "Total number of plugin host-call or handle() errors, by plugin and kind",
		},
		[]string{"plugin_id", "kind"},
	)

	SubscriptionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tessera_subscriptions_active",
			Help: "Number of plugins subscribed to the subscription event last changed under this event tag",
		},
		[]string{"event_tag"},
	)

	PluginsLoadedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tessera_plugins_loaded_total",
			Help: "Total number of plugins successfully loaded and instantiated",
		},
	)
)

func init() {
	prometheus.MustRegister(EventsDispatchedTotal)
	prometheus.MustRegister(QueueDroppedTotal)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(PluginErrorsTotal)
	prometheus.MustRegister(SubscriptionsActive)
	prometheus.MustRegister(PluginsLoadedTotal)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
