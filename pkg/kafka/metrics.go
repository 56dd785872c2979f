package kafka

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registererMu sync.Mutex
	registerer   prometheus.Registerer = prometheus.DefaultRegisterer
)

// SetMetricsRegisterer changes where producers and consumers created
// afterwards register their collectors.
func SetMetricsRegisterer(reg prometheus.Registerer) {
	registererMu.Lock()
	defer registererMu.Unlock()
	registerer = reg
}

func metricsRegisterer() prometheus.Registerer {
	registererMu.Lock()
	defer registererMu.Unlock()
	return registerer
}

// register adds c to reg and returns the collector already registered under
// the same descriptor when there is one, so several clients share series.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

type producerMetrics struct {
	messages *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func newProducerMetrics(reg prometheus.Registerer) *producerMetrics {
	return &producerMetrics{
		messages: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_kafka_produced_messages_total",
			Help: "Messages written to Kafka by topic and result",
		}, []string{"topic", "result"})),
		bytes: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_kafka_produced_bytes_total",
			Help: "Uncompressed payload bytes written to Kafka",
		}, []string{"topic"})),
		latency: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signalengine_kafka_produce_seconds",
			Help:    "Time spent in WriteMessages",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"})),
	}
}

func (m *producerMetrics) observe(topic string, n int, size int64, seconds float64, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.messages.WithLabelValues(topic, result).Add(float64(n))
	m.bytes.WithLabelValues(topic).Add(float64(size))
	m.latency.WithLabelValues(topic).Observe(seconds)
}

type consumerMetrics struct {
	backlog  *prometheus.GaugeVec
	handled  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newConsumerMetrics(reg prometheus.Registerer) *consumerMetrics {
	return &consumerMetrics{
		backlog: register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalengine_kafka_consumer_backlog",
			Help: "Messages fetched but not yet handled, per worker",
		}, []string{"worker"})),
		handled: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_kafka_consumed_messages_total",
			Help: "Consumed messages by topic and final result (ok, dlq, dropped)",
		}, []string{"topic", "result"})),
		duration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signalengine_kafka_consume_seconds",
			Help:    "Handling time per message including retries",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"})),
	}
}
