package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Search job Prometheus metrics.
var (
	JobsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "seqsearch",
			Name:      "jobs_submitted_total",
			Help:      "Total number of accepted search jobs",
		},
		[]string{"algorithm"},
	)

	JobsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "seqsearch",
			Name:      "jobs_finished_total",
			Help:      "Total number of search jobs that reached a terminal state",
		},
		[]string{"algorithm", "status"}, // "completed" / "failed"
	)

	JobsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "seqsearch",
			Name:      "jobs_rejected_total",
			Help:      "Total number of submissions rejected before a job was created",
		},
		[]string{"reason"},
	)

	JobsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "seqsearch",
			Name:      "jobs_running",
			Help:      "Number of jobs holding a worker slot",
		},
	)

	JobsQueued = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "seqsearch",
			Name:      "jobs_queued",
			Help:      "Number of jobs waiting for a worker slot",
		},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "seqsearch",
			Name:      "job_duration_seconds",
			Help:      "Search job pipeline duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"algorithm"},
	)

	JobHits = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "seqsearch",
			Name:      "job_hits",
			Help:      "Number of hits per completed job",
			Buckets:   []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
		},
	)

	ToolRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "seqsearch",
			Name:      "tool_runs_total",
			Help:      "Total number of external BLAST+ tool invocations",
		},
		[]string{"tool", "result"}, // "ok" / "exit" / "timeout" / "output_limit" / "start"
	)

	ToolRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "seqsearch",
			Name:      "tool_run_duration_seconds",
			Help:      "External BLAST+ tool run duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"tool"},
	)

	JobStoreEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "seqsearch",
			Name:      "job_store_evictions_total",
			Help:      "Jobs removed from the job store by capacity pressure or age sweep",
		},
		[]string{"reason"}, // "capacity" / "age"
	)

	IdentityRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "seqsearch",
			Name:      "identity_records",
			Help:      "Number of identity records in the published table",
		},
	)

	IdentityLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "seqsearch",
			Name:      "identity_loads_total",
			Help:      "Identity table load attempts",
		},
		[]string{"result"}, // "ok" / "error" / "disabled"
	)
)

var registerSearchOnce sync.Once

// RegisterSearchMetrics registers job, tool and identity metrics with the
// default registry. Safe to call more than once.
func RegisterSearchMetrics() {
	registerSearchOnce.Do(func() {
		prometheus.MustRegister(
			JobsSubmittedTotal,
			JobsFinishedTotal,
			JobsRejectedTotal,
			JobsRunning,
			JobsQueued,
			JobDuration,
			JobHits,
			ToolRunsTotal,
			ToolRunDuration,
			JobStoreEvictionsTotal,
			IdentityRecords,
			IdentityLoadsTotal,
		)
	})
}
