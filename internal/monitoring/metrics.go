// Package monitoring registers the Prometheus metrics for the tracking
// pipeline, served on /metrics by the HTTP server.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var (
	EventsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackd_events_ingested_total",
			Help: "Tracking events accepted, by event type",
		},
		[]string{"event_type"},
	)

	TrackRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackd_track_rejected_total",
			Help: "Track requests rejected, by reason",
		},
		[]string{"reason"},
	)

	VisitorsIdentified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackd_visitors_identified_total",
			Help: "Visitors promoted to contacts, by matching method",
		},
		[]string{"matched_via"},
	)

	ResolutionsQueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trackd_resolutions_queued_total",
			Help: "Identify resolutions accepted by the async queue",
		},
	)

	ResolutionsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackd_resolutions_processed_total",
			Help: "Async resolutions finished, by outcome",
		},
		[]string{"outcome"},
	)

	TrackDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trackd_track_duration_seconds",
			Help:    "End-to-end duration of track requests",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// InitMetrics registers all collectors. Safe to call once at startup;
// duplicate registration is logged, not fatal.
func InitMetrics() {
	for _, c := range []prometheus.Collector{
		EventsIngested,
		TrackRejected,
		VisitorsIdentified,
		ResolutionsQueued,
		ResolutionsProcessed,
		TrackDuration,
	} {
		if err := prometheus.Register(c); err != nil {
			zap.L().Warn("metrics registration failed", zap.Error(err))
		}
	}
}
