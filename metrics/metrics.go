package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "checkout"

var (
	PurchaseOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "purchase_outcomes_total",
		Help:      "Purchase attempts by flow and outcome status.",
	}, []string{"flow", "status"})

	GatewayDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "gateway_request_duration_seconds",
		Help:      "Latency of card gateway calls.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"operation", "result"})

	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
	}, []string{"name"})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status code.",
	}, []string{"method", "route", "code"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route and method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	OutboxPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_events_published_total",
		Help:      "Outbox events delivered to the broker.",
	})

	StalePaymentsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stale_payments_failed_total",
		Help:      "Open payments failed by the reconciliation sweep.",
	})
)

// The default registry already exports the go and process collectors.
func init() {
	prometheus.MustRegister(
		PurchaseOutcomes,
		GatewayDuration,
		BreakerState,
		HTTPRequests,
		HTTPDuration,
		OutboxPublished,
		StalePaymentsFailed,
	)
}
