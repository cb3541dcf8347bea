package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements the domain Metrics interface using Prometheus.
type Recorder struct {
	ticks          *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	archived       *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	activeContexts prometheus.Gauge
}

// New registers the bridge collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		ticks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saxobridge_ticks_total",
				Help: "Normalized records written to stream listeners",
			},
			[]string{"kind"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saxobridge_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		archived: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saxobridge_messages_archived_total",
				Help: "Ticks handed to the archive backend",
			},
			[]string{"backend"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "saxobridge_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		activeContexts: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "saxobridge_active_contexts",
				Help: "Open upstream streaming contexts",
			},
		),
	}
}

func (r *Recorder) RecordTick(kind string) {
	r.ticks.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordArchived(backend string, n int) {
	r.archived.WithLabelValues(backend).Add(float64(n))
}

func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) SetActiveContexts(n int) {
	r.activeContexts.Set(float64(n))
}

// Nop discards all observations.
type Nop struct{}

func (Nop) RecordTick(string)             {}
func (Nop) RecordError(string)            {}
func (Nop) RecordArchived(string, int)    {}
func (Nop) RecordLatency(string, float64) {}
func (Nop) SetActiveContexts(int)         {}
