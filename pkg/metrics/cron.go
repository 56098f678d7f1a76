package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics records maintenance job outcomes and durations.
type CronJobMetrics struct {
	successes *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewCronJobMetrics registers the cron metrics on the provided registerer.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	successes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "packdrop_cron_job_success_total",
		Help: "Completed cron job runs, by job.",
	}, []string{"job"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "packdrop_cron_job_failure_total",
		Help: "Failed cron job runs, by job.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "packdrop_cron_job_duration_seconds",
		Help:    "Duration of cron job runs, by job.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	reg.MustRegister(successes, failures, duration)
	return &CronJobMetrics{
		successes: successes,
		failures:  failures,
		duration:  duration,
	}
}

// IncSuccess records a completed run for the job.
func (m *CronJobMetrics) IncSuccess(job string) {
	if m == nil || m.successes == nil {
		return
	}
	m.successes.WithLabelValues(normalizeLabel(job)).Inc()
}

// IncFailure records a failed run for the job.
func (m *CronJobMetrics) IncFailure(job string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(job)).Inc()
}

// ObserveDuration records how long a run of the job took.
func (m *CronJobMetrics) ObserveDuration(job string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(job)).Observe(d.Seconds())
}
