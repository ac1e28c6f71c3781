package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"termrun/internal/domain"
)

// Recorder holds the command invocation collectors.
type Recorder struct {
	registry *prometheus.Registry

	// InvocationsTotal counts finished invocations by terminal state
	InvocationsTotal *prometheus.CounterVec

	// InvocationDuration tracks wall time from send to terminal state
	InvocationDuration *prometheus.HistogramVec

	// ActiveInvocations tracks invocations currently running
	ActiveInvocations prometheus.Gauge

	// OutputChunks counts output chunks consumed
	OutputChunks prometheus.Counter

	// OutputBytes counts decoded output bytes consumed
	OutputBytes prometheus.Counter

	// ErrorsTotal counts failures by error code
	ErrorsTotal *prometheus.CounterVec
}

// New creates a Recorder backed by its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		InvocationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termrun_invocations_total",
				Help: "Total number of finished command invocations",
			},
			[]string{"state"},
		),
		InvocationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "termrun_invocation_duration_seconds",
				Help:    "Command invocation duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 1800},
			},
			[]string{"state"},
		),
		ActiveInvocations: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "termrun_active_invocations",
				Help: "Number of command invocations currently running",
			},
		),
		OutputChunks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "termrun_output_chunks_total",
				Help: "Total number of output chunks consumed",
			},
		),
		OutputBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "termrun_output_bytes_total",
				Help: "Total number of decoded output bytes consumed",
			},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termrun_invocation_errors_total",
				Help: "Total number of failed invocations by error code",
			},
			[]string{"code"},
		),
	}
}

// Registry exposes the underlying registry for tests and custom handlers.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler returns the /metrics HTTP handler.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Started marks an invocation as running.
func (r *Recorder) Started() {
	if r == nil {
		return
	}
	r.ActiveInvocations.Inc()
}

// Chunk records one consumed output chunk of n bytes.
func (r *Recorder) Chunk(n int) {
	if r == nil {
		return
	}
	r.OutputChunks.Inc()
	r.OutputBytes.Add(float64(n))
}

// Finished records a terminal state. Safe to call on a nil Recorder.
func (r *Recorder) Finished(state domain.InvocationState, err error, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.ActiveInvocations.Dec()
	r.InvocationsTotal.WithLabelValues(string(state)).Inc()
	r.InvocationDuration.WithLabelValues(string(state)).Observe(elapsed.Seconds())
	if state == domain.InvocationFailed {
		r.ErrorsTotal.WithLabelValues(string(domain.ErrorCodeOf(err))).Inc()
	}
}
