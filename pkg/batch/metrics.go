package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskcore_batch_operations_submitted_total",
			Help: "Total operations submitted across all batch runs.",
		},
		[]string{"name"},
	)

	batchFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskcore_batch_operations_failed_total",
			Help: "Total operations that failed within a batch run.",
		},
		[]string{"name"},
	)

	batchAbortedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskcore_batch_runs_aborted_total",
			Help: "Total batch runs that ended in fail-fast abort or outer cancellation.",
		},
		[]string{"name"},
	)

	batchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskcore_batch_duration_seconds",
			Help:    "Wall-clock duration of a batch run.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"name"},
	)
)
