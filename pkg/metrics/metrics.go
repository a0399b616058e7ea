// Package metrics provides Prometheus metrics for the gateway: upstream
// request volume and latency, cache effectiveness, and records served.
// Metrics register themselves on the default registry; the inbound layer
// decides where to expose them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpstreamRequests counts upstream calls by outcome
	// (ok, unavailable, rejected).
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nsgateway",
			Name:      "upstream_requests_total",
			Help:      "Total upstream API calls by outcome",
		},
		[]string{"outcome"},
	)

	// UpstreamRequestLatency observes per-call upstream latency.
	UpstreamRequestLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "nsgateway",
			Name:      "upstream_request_seconds",
			Help:      "Upstream API call latency",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// CacheLookups counts cache lookups by result (hit, miss, expired).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nsgateway",
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by result",
		},
		[]string{"result"},
	)

	// RequestLatency observes end-to-end gateway request latency by
	// entity kind (list, report, raw).
	RequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nsgateway",
			Name:      "request_seconds",
			Help:      "End-to-end gateway request latency",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)

	// RecordsServed counts canonical records returned to callers.
	RecordsServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nsgateway",
			Name:      "records_served_total",
			Help:      "Canonical records returned to callers",
		},
		[]string{"entity"},
	)

	// RequestErrors counts failed gateway requests by error kind.
	RequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nsgateway",
			Name:      "request_errors_total",
			Help:      "Failed gateway requests by error kind",
		},
		[]string{"kind"},
	)
)
