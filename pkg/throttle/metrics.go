package throttle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation, mirroring the style of the corpus's
// filewatcher/metrics.go: a handful of promauto-registered vectors keyed
// by throttle name so multiple Throttle instances in one process don't
// collide on metric identity.
var (
	throttleCapacity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskcore_throttle_capacity",
			Help: "Configured concurrency capacity of a throttle.",
		},
		[]string{"name"},
	)

	throttleInFlightGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskcore_throttle_in_flight",
			Help: "Number of operations currently holding a throttle permit.",
		},
		[]string{"name"},
	)

	throttleExecutedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskcore_throttle_executed_total",
			Help: "Total operations that completed (success or failure) through a throttle.",
		},
		[]string{"name"},
	)

	throttleFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskcore_throttle_failed_total",
			Help: "Total operations that failed while running through a throttle.",
		},
		[]string{"name"},
	)

	throttleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskcore_throttle_duration_seconds",
			Help:    "Duration of operations run through a throttle.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"name"},
	)
)
