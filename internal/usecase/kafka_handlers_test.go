package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalEngine/internal/domain/models"
	pkgkafka "SignalEngine/pkg/kafka"
	"SignalEngine/pkg/metrics"
)

type brokenHistory struct{ err error }

func (b brokenHistory) AddSignalToHistory(context.Context, *models.Signal) (*models.HistoryEntry, error) {
	return nil, b.err
}

func (b brokenHistory) UpdateSignalOutcome(context.Context, string, models.Outcome) (*models.HistoryEntry, error) {
	return nil, b.err
}

func TestAIAnalysisHandler(t *testing.T) {
	f := newFixture(t)
	h := NewAIAnalysisHandler("ai_analysis", f.pipeline, nil, nil)
	assert.Equal(t, "ai_analysis", h.Topic())

	msg := []byte(`{"ai_analysis":{"sentiment_analysis":{"average_sentiment":-0.6,"confidence":0.9}},"market_data":{"asset":"BTC"},"user_ids":["alice"]}`)
	require.NoError(t, h.Handle(context.Background(), msg))
	assert.Len(t, f.pub.signals, 1)

	assert.NoError(t, h.Handle(context.Background(), []byte(`{not json`)))
	assert.NoError(t, h.Handle(context.Background(), []byte(`{"ai_analysis":{}}`)), "validation errors are acked")
}

func TestAIAnalysisHandler_TransientErrorRetries(t *testing.T) {
	f := newFixture(t)
	f.pipeline.history = brokenHistory{err: errors.New("storage unavailable")}
	h := NewAIAnalysisHandler("ai_analysis", f.pipeline, nil, nil)

	err := h.Handle(context.Background(), []byte(`{"ai_analysis":{"sentiment_analysis":{"average_sentiment":0.9,"confidence":0.9}}}`))
	assert.ErrorContains(t, err, "storage unavailable")
}

func TestOutcomeHandler(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.pipeline.ProcessAIAnalysis(ctx, aiAnalysis(), nil, nil)
	require.NoError(t, err)
	id := res[0].Signal.SignalID

	h := NewOutcomeHandler("outcomes", f.pipeline, nil, nil)
	require.NoError(t, h.Handle(ctx, []byte(`{"signal_id":"`+id+`","actual_outcome":"up","price_change":0.04}`)))
	entry, err := f.history.GetSignal(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, entry.Status)
	assert.InDelta(t, 0.04, *entry.Outcome.PriceChange, 1e-9)

	assert.NoError(t, h.Handle(ctx, []byte(`{"signal_id":"`+id+`","actual_outcome":"down"}`)), "conflict is acked")
	assert.NoError(t, h.Handle(ctx, []byte(`{"signal_id":"signal_missing","actual_outcome":"up"}`)), "not found is acked")
	assert.NoError(t, h.Handle(ctx, []byte(`{"actual_outcome":"up"}`)))

	f.pipeline.history = brokenHistory{err: errors.New("lock timeout")}
	assert.Error(t, h.Handle(ctx, []byte(`{"signal_id":"`+id+`","actual_outcome":"up"}`)))
}

type latencyRecorder struct {
	metrics.Nop
	ops []string
}

func (r *latencyRecorder) RecordLatency(op string, _ float64) { r.ops = append(r.ops, op) }

func TestConsumerHooks(t *testing.T) {
	rec := &latencyRecorder{}
	hooks := NewConsumerHooks(rec, nil)
	km := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("t-1")}}}

	ctx, _, _, err := hooks.BeforeHandle(context.Background(), "outcomes", km, []byte(`{"signal_id":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, "t-1", ctx.Value(pkgkafka.CtxTraceID))
	hooks.AfterHandle(ctx, "outcomes", km, nil, nil)
	assert.Equal(t, []string{"kafka_outcomes"}, rec.ops)

	_, _, _, err = hooks.BeforeHandle(context.Background(), "outcomes", km, []byte("  "))
	var herr *pkgkafka.HookError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "ERR_EMPTY_PAYLOAD", herr.Code)
}
