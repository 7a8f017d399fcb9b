package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsPlanned = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flywheel_jobs_planned_total",
		Help: "Jobs created by the planner, by selection mode",
	}, []string{"mode"})
	JobsProduced = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flywheel_jobs_produced_total",
		Help: "Jobs that completed production",
	})
	JobsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flywheel_jobs_failed_total",
		Help: "Jobs that failed during production",
	})
	SamplesRecorded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flywheel_samples_recorded_total",
		Help: "Performance samples appended",
	})
	JobsPromoted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flywheel_jobs_promoted_total",
		Help: "Jobs promoted to analyzed",
	})
	TelemetrySkips = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flywheel_telemetry_skips_total",
		Help: "Jobs skipped in a telemetry round",
	})
	PendingDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flywheel_pending_jobs",
		Help: "Jobs waiting for production",
	})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsPlanned,
			JobsProduced,
			JobsFailed,
			SamplesRecorded,
			JobsPromoted,
			TelemetrySkips,
			PendingDepth,
		)
	})
	return promhttp.Handler()
}
