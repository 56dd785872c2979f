package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Message is one keyed record for PublishBatch. Value follows the same
// encoding rules as Publish.
type Message struct {
	Key   []byte
	Value interface{}
}

// Producer writes JSON events to Kafka. A trace id found in the context is
// forwarded as the trace_id header.
type Producer struct {
	writer  *kafka.Writer
	metrics *producerMetrics
	now     func() time.Time
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := defaultProducerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka producer: no brokers")
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		MaxAttempts:            cfg.MaxAttempts,
		WriteTimeout:           cfg.WriteTimeout,
		ReadTimeout:            cfg.ReadTimeout,
		BatchSize:              cfg.BatchSize,
		BatchBytes:             int64(cfg.BatchBytes),
		BatchTimeout:           cfg.BatchTimeout,
		Async:                  cfg.Async,
		AllowAutoTopicCreation: false,
	}
	if cfg.HashByKey {
		w.Balancer = &kafka.Hash{}
	}
	if codec, ok := compressionCodec(cfg.Compression); ok {
		w.Compression = codec
	}

	return &Producer{
		writer:  w,
		metrics: newProducerMetrics(metricsRegisterer()),
		now:     time.Now,
	}, nil
}

// Publish writes one record. []byte and string values are sent as is; any
// other value is JSON encoded.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	return p.PublishBatch(ctx, topic, []Message{{Key: key, Value: value}})
}

// PublishBatch writes messages to topic in a single WriteMessages call.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	headers := traceHeaders(ctx)
	at := p.now()

	records := make([]kafka.Message, len(messages))
	var size int64
	for i, m := range messages {
		v, err := encodeValue(m.Value)
		if err != nil {
			return fmt.Errorf("encode %s record %d: %w", topic, i, err)
		}
		records[i] = kafka.Message{Topic: topic, Key: m.Key, Value: v, Time: at, Headers: headers}
		size += int64(len(v))
	}

	start := time.Now()
	err := p.writer.WriteMessages(ctx, records...)
	p.metrics.observe(topic, len(records), size, time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("write %s: %w", topic, err)
	}
	return nil
}

// PublishMessage writes an unkeyed record; it is the sink the log collector
// ships batches through.
func (p *Producer) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.Publish(ctx, topic, nil, payload)
}

// Close flushes pending async writes and releases the connections.
func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func encodeValue(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case []byte:
		return val, nil
	case string:
		return []byte(val), nil
	case json.RawMessage:
		return val, nil
	default:
		return json.Marshal(v)
	}
}

func traceHeaders(ctx context.Context) []kafka.Header {
	id, _ := ctx.Value(CtxTraceID).(string)
	if id == "" {
		return nil
	}
	return []kafka.Header{{Key: traceHeader, Value: []byte(id)}}
}
