package evaluation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalEngine/internal/domain/models"
)

func signal(id string, t models.SignalType, strength int, confidence float64) *models.Signal {
	return &models.Signal{
		SignalID:   id,
		Asset:      "BTC",
		Type:       t,
		Strength:   strength,
		Confidence: confidence,
		Timestamp:  time.Now(),
		Status:     models.StatusActive,
	}
}

func newEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	e, err := NewEvaluator(models.DefaultWeights())
	require.NoError(t, err)
	return e
}

func TestNewEvaluator_RejectsWeightsNotSummingToOne(t *testing.T) {
	_, err := NewEvaluator(models.Weights{Strength: 0.5, Confidence: 0.5, AIAnalysis: 0.2})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestEvaluateSignal_Defaults(t *testing.T) {
	e := newEvaluator(t)
	ev, err := e.EvaluateSignal(signal("s1", models.SignalBuy, 8, 0.8), nil)
	require.NoError(t, err)

	assert.InDelta(t, 0.8, ev.Scores.Strength, 1e-9)
	assert.InDelta(t, 0.8, ev.Scores.Confidence, 1e-9)
	assert.InDelta(t, 0.5, ev.Scores.AIAnalysis, 1e-9)
	assert.InDelta(t, 0.5, ev.Scores.MarketContext, 1e-9)
	// 0.32 + 0.24 + 0.10 + 0.05
	assert.InDelta(t, 0.71, ev.OverallScore, 1e-9)
	assert.Equal(t, models.EvalGood, ev.EvaluationLevel)
	assert.Equal(t, models.Recommended, ev.Recommendation.Action)
	assert.InDelta(t, 0.71, ev.Recommendation.Confidence, 1e-9)
	assert.Len(t, ev.Recommendation.Reasons, 2)
	assert.Equal(t, models.DefaultWeights(), ev.Weights)
}

func TestEvaluateSignal_AIAndMarketContext(t *testing.T) {
	e := newEvaluator(t)
	s := signal("s1", models.SignalBuy, 10, 1.0)
	s.AIAnalysis = map[string]any{
		"sentiment_analysis": map[string]any{"confidence": 0.9},
		"price_prediction":   map[string]any{"confidence": 0.6},
		"anomaly_detection":  map[string]any{"anomaly_risk": "high"},
	}
	historical := map[string]any{
		"BTC": map[string]any{"market_trend": "up", "volatility": 0.01, "liquidity": 0.9},
	}
	ev, err := e.EvaluateSignal(s, historical)
	require.NoError(t, err)

	assert.InDelta(t, 0.8, ev.Scores.AIAnalysis, 1e-9)
	assert.InDelta(t, 0.9, ev.Scores.MarketContext, 1e-9)
	assert.Equal(t, models.EvalExcellent, ev.EvaluationLevel)
	assert.Equal(t, models.StronglyRecommended, ev.Recommendation.Action)
	assert.LessOrEqual(t, ev.Recommendation.Confidence, 1.0)
}

func TestMarketContext_OpposingTrendAndClamps(t *testing.T) {
	s := signal("s1", models.SignalSell, 5, 0.5)
	score := marketContextScore(s, map[string]any{"BTC": map[string]any{"market_trend": "up", "volatility": 0.5}})
	// 0.3 trend, 0.1 volatility floor, 0.5 liquidity default
	assert.InDelta(t, 0.3, score, 1e-9)

	assert.Equal(t, 0.5, marketContextScore(s, map[string]any{"ETH": map[string]any{}}))
}

func TestEvaluateSignal_Invalid(t *testing.T) {
	e := newEvaluator(t)
	_, err := e.EvaluateSignal(signal("s1", models.SignalBuy, 0, 0.5), nil)
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Empty(t, e.EvaluateMultiple([]*models.Signal{signal("", models.SignalBuy, 5, 0.5)}, nil))
}

func TestLevelBandsAndRecommendations(t *testing.T) {
	cases := []struct {
		score  float64
		level  models.EvaluationLevel
		action models.RecommendationAction
		conf   float64
	}{
		{0.95, models.EvalExcellent, models.StronglyRecommended, 1.0},
		{0.8, models.EvalVeryGood, models.StronglyRecommended, 0.88},
		{0.65, models.EvalGood, models.Recommended, 0.65},
		{0.5, models.EvalFair, models.CautiouslyRecommended, 0.5},
		{0.4, models.EvalPoor, models.NotRecommended, 0.4},
		{0.1, models.EvalVeryPoor, models.NotRecommended, 0.1},
	}
	for _, c := range cases {
		level := Level(c.score)
		assert.Equal(t, c.level, level, "score %v", c.score)
		r := recommend(models.SignalBuy, level, c.score)
		assert.Equal(t, c.action, r.Action)
		assert.InDelta(t, c.conf, r.Confidence, 1e-9)
	}
}

func TestCompareSignals_OrderedByScore(t *testing.T) {
	e := newEvaluator(t)
	ranked := e.CompareSignals([]*models.Signal{
		signal("weak", models.SignalBuy, 2, 0.5),
		signal("strong", models.SignalBuy, 9, 0.9),
		signal("invalid", models.SignalBuy, 20, 0.9),
		signal("mid", models.SignalBuy, 6, 0.7),
	}, nil)
	require.Len(t, ranked, 3)
	assert.Equal(t, "strong", ranked[0].Signal.SignalID)
	assert.Equal(t, "mid", ranked[1].Signal.SignalID)
	assert.Equal(t, "weak", ranked[2].Signal.SignalID)
}

func TestGetSignalStatistics(t *testing.T) {
	e := newEvaluator(t)
	empty := e.GetSignalStatistics(nil)
	assert.Zero(t, empty.TotalSignals)
	assert.Zero(t, empty.AvgStrength)

	stats := e.GetSignalStatistics([]*models.Signal{
		signal("a", models.SignalBuy, 3, 0.4),
		signal("b", models.SignalBuy, 4, 0.5),
		signal("c", models.SignalSell, 8, 0.8),
	})
	assert.Equal(t, 3, stats.TotalSignals)
	assert.InDelta(t, 5.0, stats.AvgStrength, 1e-9)
	assert.Equal(t, map[models.SignalType]int{models.SignalBuy: 2, models.SignalSell: 1}, stats.SignalTypes)
	assert.Equal(t, models.Distribution3{Low: 1, Medium: 1, High: 1}, stats.StrengthDistribution)
	assert.Equal(t, models.Distribution3{Low: 1, Medium: 1, High: 1}, stats.ConfidenceDistribution)
}
