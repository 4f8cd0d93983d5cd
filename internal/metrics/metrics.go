// Package metrics exposes the Prometheus counters/histograms/gauges the C10
// read API serves at GET /metrics.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Depther reports the current undelivered message count of a queue; only
// *queue.Async implements it meaningfully, so the gauge reads 0 under the
// eager queue.
type Depther interface {
	Depth(ctx context.Context) (int64, error)
}

// Registry bundles every metric the service records, wired at startup and
// passed by reference into whatever emits each one.
type Registry struct {
	JobsTotal      *prometheus.CounterVec
	StepDuration   *prometheus.HistogramVec
	QueueDepth     prometheus.GaugeFunc
	Registerer     prometheus.Registerer
	Gatherer       prometheus.Gatherer
}

// New registers every metric against a fresh registry. depth is polled
// on-demand by the queue-depth gauge; pass a func that always returns 0 when
// running in eager mode.
func New(depth func() float64) *Registry {
	reg := prometheus.NewRegistry()

	jobsTotal := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Namespace: "dreamforge",
		Name:      "jobs_total",
		Help:      "Jobs reaching a terminal status, labeled by type and status.",
	}, []string{"type", "status"})

	stepDuration := promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dreamforge",
		Name:      "step_duration_seconds",
		Help:      "Wall-clock duration of a step's Run call, labeled by step name and outcome.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"step", "status"})

	queueDepth := promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "dreamforge",
		Name:      "queue_depth",
		Help:      "Undelivered-or-in-flight messages on the dispatch queue.",
	}, depth)

	return &Registry{
		JobsTotal:    jobsTotal,
		StepDuration: stepDuration,
		QueueDepth:   queueDepth,
		Registerer:   reg,
		Gatherer:     reg,
	}
}

// RecordJobTerminal increments the job counter once a job reaches succeeded
// or failed.
func (r *Registry) RecordJobTerminal(jobType, status string) {
	r.JobsTotal.WithLabelValues(jobType, status).Inc()
}

// RecordStepDuration records how long a step's Run call took.
func (r *Registry) RecordStepDuration(step, status string, seconds float64) {
	r.StepDuration.WithLabelValues(step, status).Observe(seconds)
}
