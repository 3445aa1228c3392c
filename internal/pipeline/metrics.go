package pipeline

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// Outcome labels the result of one leaf task run.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeRecoverable Outcome = "recoverable"
	OutcomeFatal       Outcome = "fatal"
	OutcomeCanceled    Outcome = "canceled"
)

// Recorder observes task runs.
type Recorder interface {
	ObserveTask(task string, d time.Duration, outcome Outcome)
}

// NoopRecorder is the default Recorder.
type NoopRecorder struct{}

func (NoopRecorder) ObserveTask(string, time.Duration, Outcome) {}

// PrometheusRecorder implements Recorder with Prometheus metrics.
type PrometheusRecorder struct {
	runs     *prom.CounterVec
	duration *prom.HistogramVec
}

// NewPrometheusRecorder constructs the task metrics and registers them on reg.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	pr := &PrometheusRecorder{
		runs: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitesmith",
			Name:      "task_runs_total",
			Help:      "Task runs by outcome",
		}, []string{"task", "outcome"}),
		duration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "sitesmith",
			Name:      "task_duration_seconds",
			Help:      "Duration of individual task runs",
			Buckets:   prom.DefBuckets,
		}, []string{"task"}),
	}
	reg.MustRegister(pr.runs, pr.duration)
	return pr
}

// ObserveTask records one run.
func (p *PrometheusRecorder) ObserveTask(task string, d time.Duration, outcome Outcome) {
	p.runs.WithLabelValues(task, string(outcome)).Inc()
	p.duration.WithLabelValues(task).Observe(d.Seconds())
}
