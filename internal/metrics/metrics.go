// Package metrics exposes the Prometheus instrumentation SPEC_FULL.md's
// DOMAIN STACK wires client_golang to: job counts by status and a step
// dispatch latency histogram (spec.md §4.7's per-step dispatch), scraped
// at /metrics alongside the rest of the HTTP surface.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// JobStatusTransitionsTotal counts every job status transition the
	// engine makes, labeled by the status reached — the job-count-by-
	// status signal SPEC_FULL.md's metrics row names.
	JobStatusTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weaver_ems_job_status_transitions_total",
			Help: "Total number of job status transitions, by status reached",
		},
		[]string{"status"},
	)

	// JobsInFlight tracks jobs currently running (the engine only ever
	// sets the "running" label), so a scrape reflects the live distribution rather than only
	// the lifetime transition counts above.
	JobsInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "weaver_ems_jobs_in_flight",
			Help: "Number of jobs currently in a non-terminal status, by status",
		},
		[]string{"status"},
	)

	// StepDispatchDuration times one execution-plan step's dispatch,
	// labeled by the adapter that ran it (local container, WPS-1, or
	// OGC API - Processes remote ADES).
	StepDispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weaver_ems_step_dispatch_duration_seconds",
			Help:    "Time taken to dispatch and complete one execution plan step, by adapter",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"adapter"},
	)

	// StepDispatchFailuresTotal counts step dispatch failures, labeled by
	// adapter, independent of the job-level outcome the step's failure
	// eventually causes.
	StepDispatchFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weaver_ems_step_dispatch_failures_total",
			Help: "Total number of execution plan step dispatch failures, by adapter",
		},
		[]string{"adapter"},
	)
)

func init() {
	prometheus.MustRegister(JobStatusTransitionsTotal)
	prometheus.MustRegister(JobsInFlight)
	prometheus.MustRegister(StepDispatchDuration)
	prometheus.MustRegister(StepDispatchFailuresTotal)
}

// Handler returns the Prometheus scrape handler mounted at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times one in-flight operation against a *HistogramVec, mirroring
// the teacher pack's metrics.Timer helper (cuemby-warren/pkg/metrics).
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time against histogram, labeled by
// labelValues in declaration order.
func (t *Timer) ObserveDuration(histogram *prometheus.HistogramVec, labelValues ...string) {
	histogram.WithLabelValues(labelValues...).Observe(time.Since(t.start).Seconds())
}
