package observer

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// PromRecorder exports pipeline metrics to a prometheus registry.
type PromRecorder struct {
	compiles        *prometheus.CounterVec
	compileDuration *prometheus.HistogramVec
	runs            *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	rejected        *prometheus.CounterVec
}

// NewPromRecorder registers the execbox collectors on reg.
func NewPromRecorder(reg prometheus.Registerer) *PromRecorder {
	factory := promauto.With(reg)
	return &PromRecorder{
		compiles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "execbox_compiles_total",
			Help: "Total number of compiler invocations",
		}, []string{"profile", "ok"}),
		compileDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "execbox_compile_duration_ms",
			Help:    "Compilation wall time in milliseconds",
			Buckets: durationBuckets,
		}, []string{"profile"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "execbox_runs_total",
			Help: "Total number of finished requests by terminal state",
		}, []string{"profile", "state"}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "execbox_run_duration_ms",
			Help:    "Program wall time in milliseconds",
			Buckets: durationBuckets,
		}, []string{"profile"}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "execbox_rejected_total",
			Help: "Total number of submissions rejected before any artifact was written",
		}, []string{"profile"}),
	}
}

func (r *PromRecorder) ObserveCompile(ctx context.Context, profile string, ok bool, elapsed time.Duration) {
	r.compiles.WithLabelValues(profile, strconv.FormatBool(ok)).Inc()
	r.compileDuration.WithLabelValues(profile).Observe(float64(elapsed.Milliseconds()))
}

func (r *PromRecorder) ObserveRun(ctx context.Context, profile string, state string, elapsed time.Duration) {
	r.runs.WithLabelValues(profile, state).Inc()
	if elapsed > 0 {
		r.runDuration.WithLabelValues(profile).Observe(float64(elapsed.Milliseconds()))
	}
}

func (r *PromRecorder) ObserveRejected(ctx context.Context, profile string) {
	r.rejected.WithLabelValues(profile).Inc()
}
