package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	signalsGenerated *prometheus.CounterVec
	signalsSkipped   *prometheus.CounterVec
	notifications    *prometheus.CounterVec
	outcomes         *prometheus.CounterVec
	accuracy         *prometheus.HistogramVec
	errorsTotal      *prometheus.CounterVec
	latency          *prometheus.HistogramVec
}

// New creates a recorder registered on reg. Pass prometheus.DefaultRegisterer
// to expose the collectors on the default /metrics handler.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		signalsGenerated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalengine_signals_generated_total",
				Help: "Total number of signals generated",
			},
			[]string{"type", "asset"},
		),
		signalsSkipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalengine_signals_skipped_total",
				Help: "Signals not generated, by reason (validation, policy_skip)",
			},
			[]string{"reason"},
		),
		notifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalengine_notifications_total",
				Help: "Notification deliveries by channel and status",
			},
			[]string{"channel", "status"},
		),
		outcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalengine_outcomes_total",
				Help: "Resolved signal outcomes by signal type",
			},
			[]string{"type"},
		),
		accuracy: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalengine_outcome_accuracy",
				Help:    "Accuracy of resolved outcomes",
				Buckets: []float64{0, 0.5, 1},
			},
			[]string{"type"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalengine_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalengine_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordSignalGenerated(signalType, asset string) {
	r.signalsGenerated.WithLabelValues(signalType, asset).Inc()
}

func (r *Recorder) RecordSignalSkipped(reason string) {
	r.signalsSkipped.WithLabelValues(reason).Inc()
}

func (r *Recorder) RecordNotification(channel, status string) {
	r.notifications.WithLabelValues(channel, status).Inc()
}

func (r *Recorder) RecordOutcome(signalType string, accuracy float64) {
	r.outcomes.WithLabelValues(signalType).Inc()
	r.accuracy.WithLabelValues(signalType).Observe(accuracy)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordSignalGenerated(string, string) {}
func (Nop) RecordSignalSkipped(string)           {}
func (Nop) RecordNotification(string, string)    {}
func (Nop) RecordOutcome(string, float64)        {}
func (Nop) RecordError(string)                   {}
func (Nop) RecordLatency(string, float64)        {}
