// Package metrics defines the Prometheus metrics of the shipment tracker.
// A Metrics value owns its collectors so tests can use a private registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "shipment_tracker"

// Metrics groups every collector the application records
type Metrics struct {
	// FetchRequestsTotal counts provider calls.
	// Labels: provider, outcome ("ok", "http_error", "error")
	FetchRequestsTotal *prometheus.CounterVec

	// FetchDuration measures provider latency per provider
	FetchDuration *prometheus.HistogramVec

	// TracksTotal counts tracking calls.
	// Labels: carrier, outcome ("ok", "unknown_carrier", "invalid_argument", "fetch_failure", "parse_failure", "decode_failure", "error")
	TracksTotal *prometheus.CounterVec

	// TrackStatusTotal counts the current status of successful tracks
	TrackStatusTotal *prometheus.CounterVec

	// CacheLookupsTotal counts cache lookups by result ("hit", "miss")
	CacheLookupsTotal *prometheus.CounterVec

	// HTTPRequestsTotal counts API requests by method, route and status code
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDuration measures API latency by method and route
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates and registers the collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		FetchRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "requests_total",
			Help:      "Total number of carrier fetches by provider and outcome.",
		}, []string{"provider", "outcome"}),
		FetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "Duration of carrier fetches.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		TracksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracks_total",
			Help:      "Total number of tracking calls by carrier and outcome.",
		}, []string{"carrier", "outcome"}),
		TrackStatusTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "track_status_total",
			Help:      "Current status of successfully tracked shipments.",
		}, []string{"carrier", "status"}),
		CacheLookupsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total number of result cache lookups by result.",
		}, []string{"result"}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of API requests.",
		}, []string{"method", "route", "code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of API requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}
