// README: Prometheus collectors for the marketplace core and HTTP surface.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "transferhub"

var (
	JobsCreated     = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "jobs_created_total", Help: "Jobs created by vehicle category"}, []string{"category"})
	BidsPlaced      = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "bids_placed_total", Help: "Bids appended to jobs"})
	Transitions     = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "job_transitions_total", Help: "Job status transitions"}, []string{"from", "to"})
	CASConflicts    = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "cas_conflicts_total", Help: "Conditional updates lost to a concurrent writer"}, []string{"operation"})
	Settlements     = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "settlements_total", Help: "Jobs settled on completion"})
	SettledAmount   = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "settled_price_units", Help: "Agreed price of settled jobs in whole currency units", Buckets: prometheus.ExponentialBuckets(10, 2, 10)})
	PricingVersion  = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "pricing_config_version", Help: "Active pricing configuration version"})
	NotifyFailures  = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "notify_failures_total", Help: "Notifications the sink rejected"})
	PublishFailures = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "event_publish_failures_total", Help: "Lifecycle events the publisher rejected"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
