// Package metrics collects Prometheus instrumentation for kernel concerns:
// manager health transitions, event bus queue depth and drops, plugin
// load/unload counts, and router request/rate-limit counters. It is
// adapted from the backend's HTTP-centric metrics collector, re-scoped away
// from HTTP/gRPC/session concerns that don't exist in this kernel.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter, gauge, and histogram the kernel's subsystems
// report to. It is built on a private Registry rather than the global
// prometheus default so an embedding process can host more than one kernel
// instance without collector name collisions.
type Metrics struct {
	Registry *prometheus.Registry

	ManagerTransitions *prometheus.CounterVec
	ManagerState       *prometheus.GaugeVec

	EventsPublished *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
	EventQueueDepth prometheus.Gauge

	PluginsLoaded   prometheus.Gauge
	PluginLoads     *prometheus.CounterVec
	PluginUnloads   *prometheus.CounterVec

	RouterRequests  *prometheus.CounterVec
	RouterDuration  *prometheus.HistogramVec
	RouterRateLimited prometheus.Counter
}

// New builds a Metrics collector registered against a fresh, private
// registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		ManagerTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_manager_transitions_total",
				Help: "Total manager state transitions, by manager and resulting state",
			},
			[]string{"manager", "state"},
		),
		ManagerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kernel_manager_state",
				Help: "Current manager state as an enum value (see manager.State)",
			},
			[]string{"manager"},
		),

		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_events_published_total",
				Help: "Total events published to the bus, by topic",
			},
			[]string{"topic"},
		),
		EventsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_events_dropped_total",
				Help: "Total events dropped by the bus, by topic and reason",
			},
			[]string{"topic", "reason"},
		),
		EventQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_event_queue_depth",
				Help: "Current depth of the event bus dispatch queue",
			},
		),

		PluginsLoaded: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_plugins_loaded",
				Help: "Number of currently loaded plugins",
			},
		),
		PluginLoads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_plugin_loads_total",
				Help: "Total plugin load attempts, by plugin and outcome",
			},
			[]string{"plugin", "outcome"},
		),
		PluginUnloads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_plugin_unloads_total",
				Help: "Total plugin unload attempts, by plugin and outcome",
			},
			[]string{"plugin", "outcome"},
		),

		RouterRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_router_requests_total",
				Help: "Total dispatched requests, by method and status class",
			},
			[]string{"method", "status"},
		),
		RouterDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kernel_router_request_duration_seconds",
				Help:    "Dispatch duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"method"},
		),
		RouterRateLimited: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "kernel_router_rate_limited_total",
				Help: "Total requests rejected by the rate limiter",
			},
		),
	}
}
