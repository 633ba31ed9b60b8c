package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeSkipped = "skipped"
)

// JobMetrics tracks batch job runs by outcome. A nil *JobMetrics records nothing.
type JobMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	if reg == nil {
		return nil
	}
	m := &JobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mmn_job_runs_total",
			Help: "Batch job runs by outcome. skipped means another holder had the lock.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mmn_job_duration_seconds",
			Help:    "Wall time of batch jobs.",
			Buckets: []float64{.05, .25, 1, 5, 15, 60, 300, 900},
		}, []string{"job"}),
	}
	reg.MustRegister(m.runs, m.duration)
	return m
}

func (m *JobMetrics) ObserveDuration(job string, d time.Duration) {
	if m != nil {
		m.duration.WithLabelValues(normalizeLabel(job)).Observe(d.Seconds())
	}
}

func (m *JobMetrics) IncSuccess(job string) { m.count(job, outcomeSuccess) }
func (m *JobMetrics) IncFailure(job string) { m.count(job, outcomeFailure) }
func (m *JobMetrics) IncSkipped(job string) { m.count(job, outcomeSkipped) }

func (m *JobMetrics) count(job, outcome string) {
	if m != nil {
		m.runs.WithLabelValues(normalizeLabel(job), outcome).Inc()
	}
}

// normalizeLabel lower-cases and trims a label value; empty values become unknown.
func normalizeLabel(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "unknown"
	}
	return value
}
