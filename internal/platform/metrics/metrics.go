// Package metrics holds the process-wide Prometheus instruments for the
// pipeline. Registration happens at init via promauto; the API binary mounts
// the exposition endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpulse_runs_started_total",
		Help: "Collection runs started, labelled by job.",
	}, []string{"job"})

	RunsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpulse_runs_failed_total",
		Help: "Collection runs that ended in error, labelled by job.",
	}, []string{"job"})

	RunsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpulse_runs_skipped_total",
		Help: "Trigger attempts collapsed because a run was already in flight.",
	}, []string{"job"})

	RecordsCollected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpulse_records_collected_total",
		Help: "Canonical records that survived normalization and dedup, by entity kind.",
	}, []string{"kind"})

	RecordsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpulse_records_dropped_total",
		Help: "Raw records dropped during normalization, by entity kind.",
	}, []string{"kind"})

	SourceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpulse_source_failures_total",
		Help: "Source fetches that returned an error, by source name.",
	}, []string{"source"})

	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpulse_upstream_requests_total",
		Help: "Authenticated upstream requests, labelled by endpoint and status class.",
	}, []string{"endpoint", "status"})

	TokenRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketpulse_token_refreshes_total",
		Help: "Credential exchanges against the upstream auth endpoint.",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpulse_cache_hits_total",
		Help: "Cache-aside hits by key domain.",
	}, []string{"domain"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpulse_cache_misses_total",
		Help: "Cache-aside misses by key domain.",
	}, []string{"domain"})

	CacheErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketpulse_cache_errors_total",
		Help: "Swallowed key-value store failures.",
	})

	ChangeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpulse_change_events_total",
		Help: "Change events emitted, labelled by entity kind and event kind.",
	}, []string{"kind", "event"})

	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketpulse_run_duration_seconds",
		Help:    "Wall time of one collection run.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"job"})
)
