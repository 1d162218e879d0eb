package shardqueue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job outcomes recorded in jobsTotal.
const (
	outcomeOK       = "ok"
	outcomeFailed   = "failed"
	outcomeCanceled = "canceled"
	outcomePanicked = "panicked"
)

var (
	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aqua",
			Subsystem: "executor",
			Name:      "jobs_total",
			Help:      "Finished jobs by executor and outcome.",
		},
		[]string{"executor", "outcome"},
	)

	rejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aqua",
			Subsystem: "executor",
			Name:      "rejected_total",
			Help:      "Submissions refused because the shard queue stayed full.",
		},
		[]string{"executor"},
	)

	attemptSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aqua",
			Subsystem: "executor",
			Name:      "attempt_seconds",
			Help:      "Duration of a single job attempt.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"executor"},
	)

	// pending is written by Submit and by the shard worker.
	pending = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "aqua",
			Subsystem: "executor",
			Name:      "pending_jobs",
			Help:      "Jobs waiting in the queues of an executor.",
		},
		[]string{"executor"},
	)
)
