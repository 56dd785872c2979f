package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"SignalEngine/internal/domain/models"
	domrepo "SignalEngine/internal/domain/repository"
	pkgkafka "SignalEngine/pkg/kafka"
	"SignalEngine/pkg/logger"
	"SignalEngine/pkg/metrics"
)

// AIAnalysisHandler consumes AI analysis payloads and runs them through the
// pipeline.
type AIAnalysisHandler struct {
	topic    string
	pipeline *SignalPipeline
	metrics  domrepo.Metrics
	logger   *logger.Logger
}

func NewAIAnalysisHandler(topic string, p *SignalPipeline, m domrepo.Metrics, l *logger.Logger) *AIAnalysisHandler {
	if m == nil {
		m = metrics.Nop{}
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &AIAnalysisHandler{topic: topic, pipeline: p, metrics: m, logger: l.Component("ai_analysis_handler")}
}

func (h *AIAnalysisHandler) Topic() string { return h.topic }

// incoming message schema: {ai_analysis, market_data, user_ids}
func (h *AIAnalysisHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		AIAnalysis map[string]any `json:"ai_analysis"`
		MarketData map[string]any `json:"market_data"`
		UserIDs    []string       `json:"user_ids"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		h.logger.Warn("dropping undecodable ai analysis", logger.Error(err))
		return nil
	}

	start := time.Now()
	res, err := h.pipeline.ProcessAIAnalysis(ctx, m.AIAnalysis, m.MarketData, m.UserIDs)
	h.metrics.RecordLatency("consume_ai_analysis", time.Since(start).Seconds())
	if err != nil {
		if ackable(err) {
			h.logger.Warn("ai analysis rejected", logger.String("reason", models.SkipReason(err)), logger.Error(err))
			return nil
		}
		h.metrics.RecordError("consume_ai_analysis")
		return err
	}
	h.logger.Debug("ai analysis consumed", logger.Int("signals", len(res)))
	return nil
}

// OutcomeHandler consumes realised outcomes for emitted signals.
type OutcomeHandler struct {
	topic    string
	pipeline *SignalPipeline
	metrics  domrepo.Metrics
	logger   *logger.Logger
}

func NewOutcomeHandler(topic string, p *SignalPipeline, m domrepo.Metrics, l *logger.Logger) *OutcomeHandler {
	if m == nil {
		m = metrics.Nop{}
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &OutcomeHandler{topic: topic, pipeline: p, metrics: m, logger: l.Component("outcome_handler")}
}

func (h *OutcomeHandler) Topic() string { return h.topic }

// incoming message schema: {signal_id, actual_outcome, price_change?, notes?}
func (h *OutcomeHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		SignalID string `json:"signal_id"`
		models.Outcome
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		h.logger.Warn("dropping undecodable outcome", logger.Error(err))
		return nil
	}
	if m.SignalID == "" {
		h.logger.Warn("dropping outcome without signal_id")
		return nil
	}

	if _, err := h.pipeline.ResolveOutcome(ctx, m.SignalID, m.Outcome); err != nil {
		if ackable(err) {
			h.logger.Warn("outcome rejected",
				logger.String("signal_id", m.SignalID),
				logger.String("reason", models.SkipReason(err)),
				logger.Error(err),
			)
			return nil
		}
		h.metrics.RecordError("consume_outcome")
		return err
	}
	return nil
}

var (
	_ pkgkafka.MessageHandler = (*AIAnalysisHandler)(nil)
	_ pkgkafka.MessageHandler = (*OutcomeHandler)(nil)
)

// NewConsumerHooks threads the message trace id into the handler context,
// rejects empty payloads before they reach a handler and logs failures with
// their trace id.
func NewConsumerHooks(m domrepo.Metrics, l *logger.Logger) *pkgkafka.HookChain {
	if m == nil {
		m = metrics.Nop{}
	}
	if l == nil {
		l = logger.NewNop()
	}
	l = l.Component("kafka_hooks")

	trace := pkgkafka.HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			ctx = pkgkafka.WithTraceID(ctx, pkgkafka.ExtractTraceID(km))
			return pkgkafka.WithStartTime(ctx, time.Now()), km, data, nil
		},
		After: func(ctx context.Context, topic string, _ kafka.Message, _ []byte, _ error) {
			if start, ok := ctx.Value(pkgkafka.CtxStartTime).(time.Time); ok {
				m.RecordLatency("kafka_"+topic, time.Since(start).Seconds())
			}
		},
		Err: func(ctx context.Context, topic string, km kafka.Message, _ []byte, err error) {
			traceID, _ := ctx.Value(pkgkafka.CtxTraceID).(string)
			l.Error("kafka message failed",
				logger.String("topic", topic),
				logger.Int("partition", km.Partition),
				logger.Int64("offset", km.Offset),
				logger.String("trace_id", traceID),
				logger.Error(err),
			)
		},
	}
	nonEmpty := pkgkafka.HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			if len(bytes.TrimSpace(data)) == 0 {
				return ctx, km, data, &pkgkafka.HookError{Code: "ERR_EMPTY_PAYLOAD", Err: errors.New("empty message")}
			}
			return ctx, km, data, nil
		},
	}
	return pkgkafka.NewHookChain(trace, nonEmpty)
}
