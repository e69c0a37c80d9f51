package runner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/spachava753/sitebuild/internal/models"
)

// Metrics records task outcomes and durations.
type Metrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	builds   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sitebuild",
			Name:      "task_duration_seconds",
			Help:      "Time spent running a task.",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"task"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitebuild",
			Name:      "task_runs_total",
			Help:      "Task runs by outcome.",
		}, []string{"task", "status"}),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitebuild",
			Name:      "builds_total",
			Help:      "Full builds by outcome.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.duration, m.runs, m.builds)
	return m
}

func (m *Metrics) observeTask(r *models.TaskResult) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(r.Task, string(r.Status)).Inc()
	if r.Status != models.TaskSkipped {
		m.duration.WithLabelValues(r.Task).Observe(r.DurationSec)
	}
}

func (m *Metrics) observeBuild(b *models.BuildResult) {
	if m == nil {
		return
	}
	result := "success"
	if b.Failed() {
		result = "failure"
	}
	m.builds.WithLabelValues(result).Inc()
}

func since(t time.Time) float64 {
	return time.Since(t).Seconds()
}
