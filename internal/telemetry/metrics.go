package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	PublishAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "sheetflow_publish_attempts_total", Help: "Publish attempts by result"}, []string{"result"})
	PublishDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "sheetflow_publish_duration_seconds", Help: "Time spent in the container publish protocol", Buckets: []float64{1, 5, 10, 30, 60, 120, 300}})
	SchedulerCycles = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "sheetflow_scheduler_cycles_total", Help: "Interactive scheduler cycles by outcome"}, []string{"outcome"})
	DuePosts        = prometheus.NewGauge(prometheus.GaugeOpts{Name: "sheetflow_due_posts", Help: "Due posts seen by the last scheduler cycle"})
	RowErrors       = prometheus.NewGauge(prometheus.GaugeOpts{Name: "sheetflow_row_errors", Help: "Unparseable schedule rows seen by the last fetch"})
	SweepRuns       = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "sheetflow_sweep_profiles_total", Help: "Profiles processed by batch sweeps by status"}, []string{"status"})
	QueuedPublishes = prometheus.NewCounter(prometheus.CounterOpts{Name: "sheetflow_publish_now_enqueued_total", Help: "Manual publish tasks enqueued"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			PublishAttempts,
			PublishDuration,
			SchedulerCycles,
			DuePosts,
			RowErrors,
			SweepRuns,
			QueuedPublishes,
		)
	})
	return promhttp.Handler()
}
