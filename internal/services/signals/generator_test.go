package signals

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalEngine/internal/domain/models"
)

type fakeMetrics struct {
	mu        sync.Mutex
	generated int
	skipped   map[string]int
}

func (f *fakeMetrics) RecordSignalGenerated(string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generated++
}

func (f *fakeMetrics) RecordSignalSkipped(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.skipped == nil {
		f.skipped = map[string]int{}
	}
	f.skipped[reason]++
}

func (f *fakeMetrics) RecordNotification(string, string) {}
func (f *fakeMetrics) RecordOutcome(string, float64)     {}
func (f *fakeMetrics) RecordError(string)                {}
func (f *fakeMetrics) RecordLatency(string, float64)     {}

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newGenerator(m *fakeMetrics) *Generator {
	return NewGenerator(Config{MinConfidence: DefaultMinConfidence}, WithMetrics(m), WithClock(func() time.Time { return fixedNow }))
}

func TestGenerateSignal_Fields(t *testing.T) {
	g := newGenerator(&fakeMetrics{})
	s, err := g.GenerateSignal(Params{Asset: "BTC", Type: models.SignalBuy, Strength: 8, Confidence: 0.85})
	require.NoError(t, err)

	assert.Regexp(t, `^signal_[0-9a-f]{8}$`, s.SignalID)
	assert.Equal(t, models.StatusActive, s.Status)
	assert.Equal(t, models.LevelStrong, s.Level)
	assert.Equal(t, fixedNow, s.Timestamp)
	assert.Equal(t, fixedNow.Add(24*time.Hour), s.ExpiryTime)
	assert.Equal(t, "Strong strong buy signal for BTC with strength 8/10 and confidence 0.85", s.Description)
	assert.Equal(t, map[string]string{"source": "ai_generated", "version": "1.0"}, s.Metadata)
	assert.NotNil(t, s.TriggerConditions)
}

func TestGenerateSignal_ValidationVersusPolicySkip(t *testing.T) {
	m := &fakeMetrics{}
	g := newGenerator(m)

	_, err := g.GenerateSignal(Params{Asset: "BTC", Type: models.SignalBuy, Strength: 11, Confidence: 0.9})
	assert.True(t, errors.Is(err, models.ErrValidation))
	assert.False(t, errors.Is(err, models.ErrPolicySkip))

	_, err = g.GenerateSignal(Params{Asset: "BTC", Type: models.SignalBuy, Strength: 5, Confidence: 1.2})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = g.GenerateSignal(Params{Asset: "BTC", Type: models.SignalBuy, Strength: 5, Confidence: 0.4})
	assert.True(t, errors.Is(err, models.ErrPolicySkip))
	assert.False(t, errors.Is(err, models.ErrValidation))

	s, err := g.GenerateSignal(Params{Asset: "BTC", Type: models.SignalBuy, Strength: 5, Confidence: 0.5})
	require.NoError(t, err)
	assert.NotNil(t, s)

	assert.Equal(t, 2, m.skipped["validation"])
	assert.Equal(t, 1, m.skipped["policy_skip"])
	assert.Equal(t, 1, m.generated)
}

func TestDeriveLevel_Bands(t *testing.T) {
	assert.Equal(t, models.LevelExtreme, models.DeriveLevel(10, 1.0))
	assert.Equal(t, models.LevelVeryWeak, models.DeriveLevel(1, 0.0))
	assert.Equal(t, models.LevelMedium, models.DeriveLevel(6, 0.5))
	assert.Equal(t, models.LevelWeak, models.DeriveLevel(3, 0.5))
	for i := 0; i < 3; i++ {
		assert.Equal(t, models.DeriveLevel(7, 0.65), models.DeriveLevel(7, 0.65))
	}
}

func TestGenerateFromAIAnalysis_FanOut(t *testing.T) {
	g := newGenerator(&fakeMetrics{})
	ai := map[string]any{
		"sentiment_analysis": map[string]any{"average_sentiment": 0.6, "confidence": 0.8},
		"price_prediction":   map[string]any{"predicted_trend": "down", "predicted_change": -0.03, "confidence": 0.7},
		"anomaly_detection":  map[string]any{"anomaly_risk": "high", "anomaly_count": 3},
	}
	out := g.GenerateFromAIAnalysis(ai, map[string]any{"asset": "ETH"})
	require.Len(t, out, 3)

	assert.Equal(t, models.SignalBuy, out[0].Type)
	assert.Equal(t, 10, out[0].Strength)
	assert.Equal(t, "ETH", out[0].Asset)
	assert.Contains(t, out[0].AIAnalysis, "sentiment_analysis")
	assert.NotContains(t, out[0].AIAnalysis, "price_prediction")

	assert.Equal(t, models.SignalSell, out[1].Type)
	assert.Equal(t, 10, out[1].Strength)

	assert.Equal(t, models.SignalAlert, out[2].Type)
	assert.Equal(t, 8, out[2].Strength)
	assert.Equal(t, 0.7, out[2].Confidence)
}

func TestGenerateFromAIAnalysis_NeutralAndSuppressed(t *testing.T) {
	m := &fakeMetrics{}
	g := newGenerator(m)
	ai := map[string]any{
		"sentiment_analysis": map[string]any{"average_sentiment": 0.1},
		"price_prediction":   map[string]any{"predicted_trend": "up", "predicted_change": 0.01, "confidence": 0.9},
		"anomaly_detection":  map[string]any{"anomaly_risk": "low"},
	}
	out := g.GenerateFromAIAnalysis(ai, nil)
	require.Len(t, out, 2)
	for _, s := range out {
		assert.Equal(t, models.SignalHold, s.Type)
		assert.Equal(t, 3, s.Strength)
		assert.Equal(t, "BTC", s.Asset)
	}
	assert.Equal(t, 1, m.skipped["policy_skip"])
}

func TestGenerateFromAIAnalysis_SubBlockRespectsFloor(t *testing.T) {
	g := newGenerator(&fakeMetrics{})
	ai := map[string]any{
		"sentiment_analysis": map[string]any{"average_sentiment": -0.5, "confidence": 0.3},
	}
	assert.Empty(t, g.GenerateFromAIAnalysis(ai, map[string]any{"asset": "SOL"}))
}

func TestScaledStrength_Truncates(t *testing.T) {
	assert.Equal(t, 8, scaledStrength(0.35, 10))
	assert.Equal(t, 9, scaledStrength(-0.45, 10))
	assert.Equal(t, 10, scaledStrength(0.9, 10))
	assert.Equal(t, 9, scaledStrength(0.021, 200))
}

func TestUpdateSignal_Atomic(t *testing.T) {
	g := newGenerator(&fakeMetrics{})
	s, err := g.GenerateSignal(Params{Asset: "BTC", Type: models.SignalBuy, Strength: 6, Confidence: 0.6})
	require.NoError(t, err)

	strength, confidence := 10, 1.5
	_, err = g.UpdateSignal(s, models.SignalPatch{Strength: &strength, Confidence: &confidence})
	require.ErrorIs(t, err, models.ErrValidation)
	assert.Equal(t, 6, s.Strength)
	assert.Equal(t, 0.6, s.Confidence)
	assert.Nil(t, s.UpdatedAt)

	confidence = 1.0
	updated, err := g.UpdateSignal(s, models.SignalPatch{Strength: &strength, Confidence: &confidence})
	require.NoError(t, err)
	assert.Equal(t, models.LevelExtreme, updated.Level)
	assert.Contains(t, updated.Description, "strength 10/10")
	require.NotNil(t, updated.UpdatedAt)
	assert.Equal(t, models.LevelMedium, s.Level)
}

func TestValidateSignal(t *testing.T) {
	g := newGenerator(&fakeMetrics{})
	s, err := g.GenerateSignal(Params{Asset: "BTC", Type: models.SignalHold, Strength: 3, Confidence: 0.7})
	require.NoError(t, err)
	assert.NoError(t, g.ValidateSignal(s))

	bad := s.Clone()
	bad.Type = "moon"
	assert.ErrorIs(t, g.ValidateSignal(bad), models.ErrValidation)

	bad = s.Clone()
	bad.Status = ""
	assert.ErrorIs(t, g.ValidateSignal(bad), models.ErrValidation)
}
