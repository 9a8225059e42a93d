// Package metrics defines the Prometheus instrumentation for the
// synchronization engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FocusWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swiperfit_focus_writes_total",
		Help: "Focus-ref writes issued to the backing store.",
	})

	FocusWriteFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swiperfit_focus_write_failures_total",
		Help: "Focus-ref writes that ultimately failed (lost by design).",
	})

	EchoesSuppressedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swiperfit_focus_echoes_suppressed_total",
		Help: "Sync events recognized as this client's own write echoing back.",
	})

	IdleDeferredSyncsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swiperfit_focus_idle_deferred_syncs_total",
		Help: "Remote focus changes withheld because the local user was recently active.",
	})

	StartConflictsRecoveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swiperfit_session_start_conflicts_recovered_total",
		Help: "Session starts that lost the insert race and adopted the existing session.",
	})

	FeedEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swiperfit_feed_events_total",
		Help: "Change-feed events received, by kind.",
	}, []string{"kind"})

	FeedDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swiperfit_feed_dropped_total",
		Help: "Change-feed payloads dropped (malformed or slow receiver).",
	})

	AttachedOwners = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swiperfit_attached_owners",
		Help: "Owners currently attached to the engine.",
	})

	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swiperfit_websocket_clients",
		Help: "Currently connected websocket clients.",
	})

	SessionEndDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swiperfit_session_end_duration_seconds",
		Help:    "Time spent ending a session (count, delete/complete, publish).",
		Buckets: prometheus.DefBuckets,
	})
)
