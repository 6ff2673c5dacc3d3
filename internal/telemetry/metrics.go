// Package telemetry provides wlproxy's Prometheus metrics and
// OpenTelemetry tracing. Every collector here corresponds to a decision
// dispatch already makes on its own; nothing in this package changes
// behavior, it only observes it.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector wlproxy records against.
// Pass it to the session, which also accepts a nil *Metrics and then
// records nothing; domain components instead take the narrower
// interface they need (e.g. globalmap.Metrics).
type Metrics struct {
	DispatchTotal    *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	ActiveSessions   prometheus.Gauge

	GlobalRemoveUnknownTotal prometheus.Counter
	CrossClientDropTotal     prometheus.Counter
	AuditAppendFailuresTotal prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		DispatchTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wlproxy",
				Name:      "dispatch_total",
				Help:      "Total frames dispatched, by direction and outcome.",
			},
			[]string{"direction", "outcome"}, // direction=request/event, outcome=forwarded/handled/dropped/error
		),
		DispatchDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "wlproxy",
				Name:      "dispatch_duration_seconds",
				Help:      "Per-frame dispatch latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"direction"},
		),
		ActiveSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "wlproxy",
				Name:      "active_sessions",
				Help:      "Number of currently connected client sessions.",
			},
		),
		GlobalRemoveUnknownTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "wlproxy",
				Name:      "global_remove_unknown_total",
				Help:      "wl_registry.global_remove events naming a server global this session never saw added.",
			},
		),
		CrossClientDropTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "wlproxy",
				Name:      "cross_client_drop_total",
				Help:      "Event arguments dropped because the referenced object has no id on this session's client endpoint.",
			},
		),
		AuditAppendFailuresTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "wlproxy",
				Name:      "audit_append_failures_total",
				Help:      "Dispatch records that failed to append to the audit sink.",
			},
		),
	}
}

// GlobalRemoveUnknown implements globalmap.Metrics.
func (m *Metrics) GlobalRemoveUnknown() { m.GlobalRemoveUnknownTotal.Inc() }

// CrossClientDrop matches the signature wlproto.CrossClientDropHook
// expects.
func (m *Metrics) CrossClientDrop() { m.CrossClientDropTotal.Inc() }
