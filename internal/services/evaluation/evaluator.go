package evaluation

import (
	"fmt"
	"math"
	"sort"
	"time"

	"SignalEngine/internal/domain/models"
	"SignalEngine/pkg/logger"
	"SignalEngine/pkg/util"
)

const neutralScore = 0.5

var anomalyRiskScores = map[string]float64{"low": 0.3, "medium": 0.6, "high": 0.9}

type Option func(*Evaluator)

func WithLogger(l *logger.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l.Component("signal_evaluator")
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// Evaluator scores signals on strength, confidence, AI analysis quality and
// market context, and turns the blended score into a recommendation.
type Evaluator struct {
	weights models.Weights
	logger  *logger.Logger
	now     func() time.Time
}

// NewEvaluator fails when the weights do not sum to 1.
func NewEvaluator(weights models.Weights, opts ...Option) (*Evaluator, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	e := &Evaluator{weights: weights, logger: logger.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Evaluator) Weights() models.Weights { return e.weights }

// EvaluateSignal scores s. historical maps an asset to its market context
// ({market_trend, volatility, liquidity}) and may be nil.
func (e *Evaluator) EvaluateSignal(s *models.Signal, historical map[string]any) (*models.Evaluation, error) {
	if err := s.Validate(); err != nil {
		e.logger.Warn("evaluation rejected", logger.String("reason", "validation"), logger.Error(err))
		return nil, err
	}

	scores := models.DimensionScores{
		Strength:      float64(s.Strength) / 10.0,
		Confidence:    s.Confidence,
		AIAnalysis:    aiAnalysisScore(s.AIAnalysis),
		MarketContext: marketContextScore(s, historical),
	}
	overall := scores.Strength*e.weights.Strength +
		scores.Confidence*e.weights.Confidence +
		scores.AIAnalysis*e.weights.AIAnalysis +
		scores.MarketContext*e.weights.MarketContext
	level := Level(overall)

	ev := &models.Evaluation{
		SignalID:        s.SignalID,
		Scores:          scores,
		Weights:         e.weights,
		OverallScore:    overall,
		EvaluationLevel: level,
		Recommendation:  recommend(s.Type, level, overall),
		EvaluatedAt:     e.now(),
	}
	e.logger.Debug("signal evaluated",
		logger.String("signal_id", s.SignalID),
		logger.String("evaluation_level", string(level)),
		logger.Float64("overall_score", overall),
	)
	return ev, nil
}

// EvaluateMultiple evaluates each signal and drops the invalid ones.
func (e *Evaluator) EvaluateMultiple(signals []*models.Signal, historical map[string]any) []*models.Evaluation {
	out := make([]*models.Evaluation, 0, len(signals))
	for _, s := range signals {
		if ev, err := e.EvaluateSignal(s, historical); err == nil {
			out = append(out, ev)
		}
	}
	return out
}

// CompareSignals returns the valid signals ordered by overall score, best
// first. Equal scores keep input order.
func (e *Evaluator) CompareSignals(signals []*models.Signal, historical map[string]any) []models.EvaluatedSignal {
	out := make([]models.EvaluatedSignal, 0, len(signals))
	for _, s := range signals {
		ev, err := e.EvaluateSignal(s, historical)
		if err != nil {
			continue
		}
		out = append(out, models.EvaluatedSignal{Signal: s, Evaluation: ev})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Evaluation.OverallScore > out[j].Evaluation.OverallScore
	})
	return out
}

// GetSignalStatistics aggregates means and low/medium/high buckets.
func (e *Evaluator) GetSignalStatistics(signals []*models.Signal) models.EvaluationStatistics {
	stats := models.EvaluationStatistics{SignalTypes: map[models.SignalType]int{}}
	if len(signals) == 0 {
		return stats
	}
	var strengthSum, confidenceSum float64
	for _, s := range signals {
		stats.TotalSignals++
		strengthSum += float64(s.Strength)
		confidenceSum += s.Confidence
		stats.SignalTypes[s.Type]++

		switch {
		case s.Strength >= 8:
			stats.StrengthDistribution.High++
		case s.Strength >= 4:
			stats.StrengthDistribution.Medium++
		default:
			stats.StrengthDistribution.Low++
		}
		switch {
		case s.Confidence >= 0.8:
			stats.ConfidenceDistribution.High++
		case s.Confidence >= 0.5:
			stats.ConfidenceDistribution.Medium++
		default:
			stats.ConfidenceDistribution.Low++
		}
	}
	stats.AvgStrength = strengthSum / float64(stats.TotalSignals)
	stats.AvgConfidence = confidenceSum / float64(stats.TotalSignals)
	return stats
}

// aiAnalysisScore averages sentiment and price-prediction confidence with the
// mapped anomaly risk, over whichever of the three are present.
func aiAnalysisScore(ai map[string]any) float64 {
	if len(ai) == 0 {
		return neutralScore
	}
	var sum float64
	var n int
	for _, key := range []string{"sentiment_analysis", "price_prediction"} {
		if c, ok := util.ToFloat(util.MapValue(ai[key])["confidence"]); ok {
			sum += c
			n++
		}
	}
	if block := util.MapValue(ai["anomaly_detection"]); block != nil {
		if raw, ok := block["anomaly_risk"]; ok {
			risk, known := anomalyRiskScores[util.StringDefault(raw, "")]
			if !known {
				risk = neutralScore
			}
			sum += risk
			n++
		}
	}
	if n == 0 {
		return neutralScore
	}
	return sum / float64(n)
}

func marketContextScore(s *models.Signal, historical map[string]any) float64 {
	data := util.MapValue(historical[s.Asset])
	if data == nil {
		return neutralScore
	}
	trend := util.StringDefault(data["market_trend"], models.TrendNeutral)
	consistency := neutralScore
	switch {
	case s.Type == models.SignalBuy && trend == models.TrendUp,
		s.Type == models.SignalSell && trend == models.TrendDown:
		consistency = 0.9
	case s.Type == models.SignalBuy && trend == models.TrendDown,
		s.Type == models.SignalSell && trend == models.TrendUp:
		consistency = 0.3
	}
	volatility := util.FloatDefault(data["volatility"], 0.02)
	volatilityScore := math.Max(0.1, math.Min(0.9, 1-volatility*10))
	liquidity := util.FloatDefault(data["liquidity"], 0.5)
	return (consistency + volatilityScore + liquidity) / 3
}

// Level bands an overall score.
func Level(score float64) models.EvaluationLevel {
	switch {
	case score >= 0.9:
		return models.EvalExcellent
	case score >= 0.75:
		return models.EvalVeryGood
	case score >= 0.6:
		return models.EvalGood
	case score >= 0.45:
		return models.EvalFair
	case score >= 0.3:
		return models.EvalPoor
	default:
		return models.EvalVeryPoor
	}
}

func recommend(t models.SignalType, level models.EvaluationLevel, score float64) models.Recommendation {
	r := models.Recommendation{SignalType: t, EvaluationLevel: level}
	switch level {
	case models.EvalExcellent, models.EvalVeryGood:
		r.Action = models.StronglyRecommended
		r.Confidence = math.Min(1, score*1.1)
		r.Reasons = []string{
			fmt.Sprintf("Strong %s signal with high confidence", t),
			"Multiple indicators confirm the signal",
		}
	case models.EvalGood:
		r.Action = models.Recommended
		r.Confidence = score
		r.Reasons = []string{
			fmt.Sprintf("Decent %s signal with reasonable confidence", t),
			"Most indicators support the signal",
		}
	case models.EvalFair:
		r.Action = models.CautiouslyRecommended
		r.Confidence = math.Max(0.5, score*0.9)
		r.Reasons = []string{
			fmt.Sprintf("Mixed signals for %s action", t),
			"Some indicators support the signal, but not all",
		}
	default:
		r.Action = models.NotRecommended
		r.Confidence = math.Min(0.5, score)
		r.Reasons = []string{
			fmt.Sprintf("Weak %s signal with low confidence", t),
			"Few indicators support the signal",
		}
	}
	return r
}
