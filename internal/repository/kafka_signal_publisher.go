package repository

import (
	"context"
	"time"

	"SignalEngine/internal/domain/models"
	"SignalEngine/internal/domain/repository"
	pkgkafka "SignalEngine/pkg/kafka"
)

const (
	EventSignalEmitted   = "signal_emitted"
	EventOutcomeResolved = "outcome_resolved"
)

// SignalEvent is the value written to the signals topic.
type SignalEvent struct {
	Event    string              `json:"event"`
	Signal   *models.Signal      `json:"signal,omitempty"`
	SignalID string              `json:"signal_id"`
	Asset    string              `json:"asset"`
	Type     models.SignalType   `json:"type"`
	Status   models.SignalStatus `json:"status"`
	Outcome  *models.Outcome     `json:"outcome,omitempty"`
	Accuracy *float64            `json:"accuracy,omitempty"`
	Time     time.Time           `json:"time"`
}

// Producer is the subset of pkg/kafka.Producer the publisher needs.
type Producer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaSignalPublisher writes signal lifecycle events keyed by asset, so all
// events for one asset land on the same partition.
type KafkaSignalPublisher struct {
	producer Producer
	topic    string
}

var _ repository.SignalPublisher = (*KafkaSignalPublisher)(nil)

func NewKafkaSignalPublisher(producer Producer, topic string) *KafkaSignalPublisher {
	return &KafkaSignalPublisher{producer: producer, topic: topic}
}

func (p *KafkaSignalPublisher) PublishSignal(ctx context.Context, s *models.Signal) error {
	return p.producer.Publish(ctx, p.topic, []byte(s.Asset), signalEvent(s))
}

// PublishSignals sends a batch in one write.
func (p *KafkaSignalPublisher) PublishSignals(ctx context.Context, signals []*models.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(signals))
	for i, s := range signals {
		msgs[i] = pkgkafka.Message{Key: []byte(s.Asset), Value: signalEvent(s)}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaSignalPublisher) PublishOutcome(ctx context.Context, e *models.HistoryEntry) error {
	at := e.AddedToHistoryAt
	if e.OutcomeUpdatedAt != nil {
		at = *e.OutcomeUpdatedAt
	}
	return p.producer.Publish(ctx, p.topic, []byte(e.Asset), SignalEvent{
		Event:    EventOutcomeResolved,
		SignalID: e.SignalID,
		Asset:    e.Asset,
		Type:     e.Type,
		Status:   e.Status,
		Outcome:  e.Outcome,
		Accuracy: e.Accuracy,
		Time:     at,
	})
}

func (p *KafkaSignalPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

func signalEvent(s *models.Signal) SignalEvent {
	return SignalEvent{
		Event:    EventSignalEmitted,
		Signal:   s,
		SignalID: s.SignalID,
		Asset:    s.Asset,
		Type:     s.Type,
		Status:   s.Status,
		Time:     s.Timestamp,
	}
}

// NopSignalPublisher drops events. Used when Kafka is disabled.
type NopSignalPublisher struct{}

func (NopSignalPublisher) PublishSignal(context.Context, *models.Signal) error        { return nil }
func (NopSignalPublisher) PublishOutcome(context.Context, *models.HistoryEntry) error { return nil }
func (NopSignalPublisher) Close() error                                               { return nil }
