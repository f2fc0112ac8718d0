// Package observability holds the process's Prometheus metrics, collected
// once at package scope and registered by each cmd/* binary against
// prometheus.DefaultRegisterer, the same pattern the teacher uses for its
// API/worker metrics.
package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	SplitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "push_splits_total", Help: "JobSplitter outcomes"},
		[]string{"result"},
	)
	VariantJobsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "push_variant_jobs_enqueued_total", Help: "Variant jobs enqueued by platform"},
		[]string{"platform"},
	)
	BatchesLoaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "push_batches_loaded_total", Help: "Batches produced by the token loader"},
		[]string{"platform"},
	)
	BatchesDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "push_batches_dispatched_total", Help: "Dispatcher send outcomes"},
		[]string{"platform", "result"},
	)
	SendLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "push_send_latency_seconds", Help: "PushNotificationSender latency"},
		[]string{"platform"},
	)
	BreakerRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "push_breaker_rejections_total", Help: "Requests rejected by the open circuit breaker"},
		[]string{"platform"},
	)
	VariantsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "push_variants_completed_total", Help: "Variants the collector has marked served"},
		[]string{"platform", "delivery_status"},
	)
	JobsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "push_jobs_completed_total", Help: "Push jobs the collector has marked fully served"},
		[]string{},
	)
	TriggerRedeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "push_trigger_redeliveries_total", Help: "TriggerMetricCollection redeliveries observed by the collector"},
		[]string{},
	)
	DeadLettered = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "push_dead_lettered_total", Help: "Messages routed to the dead letter queue"},
		[]string{"queue"},
	)
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "push_http_requests_total", Help: "Admin API requests by route and status"},
		[]string{"route", "status"},
	)
)

// Register attaches every collector above to reg. Each cmd/* binary calls
// this once at startup with prometheus.DefaultRegisterer, the registry the
// /metrics handler serves.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		SplitsTotal,
		VariantJobsEnqueued,
		BatchesLoaded,
		BatchesDispatched,
		SendLatency,
		BreakerRejections,
		VariantsCompleted,
		JobsCompleted,
		TriggerRedeliveries,
		DeadLettered,
		HTTPRequests,
	)
}
