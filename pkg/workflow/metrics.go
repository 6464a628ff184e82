package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	workflowStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskcore_workflow_steps_total",
			Help: "Total workflow steps executed, labeled by outcome.",
		},
		[]string{"name", "outcome"},
	)

	workflowRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskcore_workflow_runs_total",
			Help: "Total workflow runs, labeled by outcome.",
		},
		[]string{"name", "outcome"},
	)

	workflowDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskcore_workflow_duration_seconds",
			Help:    "Wall-clock duration of a workflow run.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"name"},
	)
)
