// Package metrics provides Prometheus observability metrics for the
// call-assignment queue.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the custom prometheus registry for our application
var Registry = prometheus.NewRegistry()

// factory allows us to register metrics to our custom Registry directly
var factory = promauto.With(Registry)

// QueueAvailable tracks the available-request count observed on the most
// recent claim or backfill pass.
var QueueAvailable = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "callqueue",
	Name:      "available_requests",
	Help:      "Available call requests observed on the most recent queue operation",
})

// ClaimsTotal tracks claim attempts by outcome ("claimed", "empty").
var ClaimsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "callqueue",
	Name:      "claims_total",
	Help:      "Claim attempts by outcome",
}, []string{"outcome"})

// BackfillCreatedTotal tracks requests created by automatic backfill.
var BackfillCreatedTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "callqueue",
	Name:      "backfill_created_total",
	Help:      "Call requests created by automatic backfill",
})

// BackfillShortfallTotal tracks backfill passes that created fewer
// requests than the deficit called for (candidate pool exhausted or lock
// conflicts).
var BackfillShortfallTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "callqueue",
	Name:      "backfill_shortfall_total",
	Help:      "Backfill passes that could not fully cover the deficit",
})

// BackfillDurationSeconds tracks time spent replenishing the queue.
var BackfillDurationSeconds = factory.NewHistogram(prometheus.HistogramOpts{
	Namespace: "callqueue",
	Name:      "backfill_duration_seconds",
	Help:      "Time taken by a backfill pass",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
})

// CompletionsTotal tracks call requests closed by submitted reports.
var CompletionsTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "callqueue",
	Name:      "completions_total",
	Help:      "Call requests completed by submitted reports",
})

// SkipRequeuesTotal tracks "call back later" re-queues.
var SkipRequeuesTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "callqueue",
	Name:      "skip_requeues_total",
	Help:      "Requests re-queued because a caller was asked to call back later",
})
