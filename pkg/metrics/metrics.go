// Package metrics exposes the Prometheus collectors Citadel's Master
// and Allocator update as they run. There is no HTTP exposition server
// here — registration only — so an embedder wires these gauges into
// whatever promhttp.Handler (or push gateway) its deployment uses.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	FrameworksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "citadel_frameworks_total",
			Help: "Total number of registered frameworks by lifecycle state",
		},
		[]string{"state"},
	)

	SlavesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "citadel_slaves_total",
			Help: "Total number of admitted slaves by lifecycle state",
		},
		[]string{"state"},
	)

	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "citadel_tasks_total",
			Help: "Total number of tasks by state",
		},
		[]string{"state"},
	)

	OffersOutstanding = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "citadel_offers_outstanding",
			Help: "Number of offers currently extended to frameworks and not yet answered",
		},
	)

	OffersSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "citadel_offers_sent_total",
			Help: "Total number of offers sent to frameworks",
		},
	)

	OffersAcceptedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "citadel_offers_accepted_total",
			Help: "Total number of offers fully or partially accepted",
		},
	)

	OffersDeclinedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "citadel_offers_declined_total",
			Help: "Total number of offers declined",
		},
	)

	OffersRescindedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "citadel_offers_rescinded_total",
			Help: "Total number of offers rescinded before being answered",
		},
	)

	AllocationRoundLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "citadel_allocation_round_latency_seconds",
			Help:    "Time taken to run one DRF allocation round",
			Buckets: prometheus.DefBuckets,
		},
	)

	ResourcesRecoveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citadel_resources_recovered_total",
			Help: "Total scalar resource units recovered back to the allocator, by resource name",
		},
		[]string{"resource"},
	)

	DominantShare = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "citadel_dominant_share",
			Help: "A framework's weighted dominant resource share, updated after each allocation round",
		},
		[]string{"framework_id", "role"},
	)

	TaskValidationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "citadel_task_validation_failures_total",
			Help: "Total number of tasks rejected by validation before launch",
		},
	)

	ReconciliationRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "citadel_reconciliation_requests_total",
			Help: "Total number of reconciliation requests handled, explicit and implicit",
		},
	)

	StatusUpdateAcknowledgementsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "citadel_status_update_acknowledgements_total",
			Help: "Total number of status update acknowledgements forwarded toward the reporting slave",
		},
	)
)

func init() {
	prometheus.MustRegister(
		FrameworksTotal,
		SlavesTotal,
		TasksTotal,
		OffersOutstanding,
		OffersSentTotal,
		OffersAcceptedTotal,
		OffersDeclinedTotal,
		OffersRescindedTotal,
		AllocationRoundLatency,
		ResourcesRecoveredTotal,
		DominantShare,
		TaskValidationFailuresTotal,
		ReconciliationRequestsTotal,
		StatusUpdateAcknowledgementsTotal,
	)
}

// Timer times an in-flight operation and reports its duration to a
// histogram when it finishes.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
