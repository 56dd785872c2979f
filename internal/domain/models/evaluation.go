package models

import (
	"fmt"
	"math"
	"time"
)

type EvaluationLevel string

const (
	EvalExcellent EvaluationLevel = "excellent"
	EvalVeryGood  EvaluationLevel = "very_good"
	EvalGood      EvaluationLevel = "good"
	EvalFair      EvaluationLevel = "fair"
	EvalPoor      EvaluationLevel = "poor"
	EvalVeryPoor  EvaluationLevel = "very_poor"
)

type RecommendationAction string

const (
	StronglyRecommended   RecommendationAction = "strongly_recommended"
	Recommended           RecommendationAction = "recommended"
	CautiouslyRecommended RecommendationAction = "cautiously_recommended"
	NotRecommended        RecommendationAction = "not_recommended"
)

// DimensionScores holds the four evaluation dimensions, each in [0,1].
type DimensionScores struct {
	Strength      float64 `json:"strength"`
	Confidence    float64 `json:"confidence"`
	AIAnalysis    float64 `json:"ai_analysis"`
	MarketContext float64 `json:"market_context"`
}

// Weights blend the dimension scores into the overall score.
type Weights struct {
	Strength      float64 `json:"strength" yaml:"strength"`
	Confidence    float64 `json:"confidence" yaml:"confidence"`
	AIAnalysis    float64 `json:"ai_analysis" yaml:"ai_analysis"`
	MarketContext float64 `json:"market_context" yaml:"market_context"`
}

func DefaultWeights() Weights {
	return Weights{Strength: 0.4, Confidence: 0.3, AIAnalysis: 0.2, MarketContext: 0.1}
}

// Validate requires non-negative weights summing to 1 so scores stay comparable.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"strength": w.Strength, "confidence": w.Confidence,
		"ai_analysis": w.AIAnalysis, "market_context": w.MarketContext,
	} {
		if v < 0 || v > 1 {
			return NewValidationError("weights."+name, fmt.Sprintf("weight must be within [0,1], got %v", v))
		}
	}
	sum := w.Strength + w.Confidence + w.AIAnalysis + w.MarketContext
	if math.Abs(sum-1) > 1e-6 {
		return NewValidationError("weights", fmt.Sprintf("weights must sum to 1, got %.4f", sum))
	}
	return nil
}

type Recommendation struct {
	Action          RecommendationAction `json:"action"`
	Confidence      float64              `json:"confidence"`
	Reasons         []string             `json:"reasons"`
	SignalType      SignalType           `json:"signal_type"`
	EvaluationLevel EvaluationLevel      `json:"evaluation_level"`
}

type Evaluation struct {
	SignalID        string          `json:"signal_id"`
	Scores          DimensionScores `json:"dimension_scores"`
	Weights         Weights         `json:"weights"`
	OverallScore    float64         `json:"overall_score"`
	EvaluationLevel EvaluationLevel `json:"evaluation_level"`
	Recommendation  Recommendation  `json:"recommendation"`
	EvaluatedAt     time.Time       `json:"evaluated_at"`
}

// EvaluatedSignal pairs a signal with its evaluation, as returned by comparisons.
type EvaluatedSignal struct {
	Signal     *Signal     `json:"signal"`
	Evaluation *Evaluation `json:"evaluation"`
}

// Distribution3 is a three-bucket low/medium/high count.
type Distribution3 struct {
	Low    int `json:"low"`
	Medium int `json:"medium"`
	High   int `json:"high"`
}

type EvaluationStatistics struct {
	TotalSignals           int                `json:"total_signals"`
	AvgStrength            float64            `json:"average_strength"`
	AvgConfidence          float64            `json:"average_confidence"`
	SignalTypes            map[SignalType]int `json:"signal_type_distribution"`
	StrengthDistribution   Distribution3      `json:"strength_distribution"`
	ConfidenceDistribution Distribution3      `json:"confidence_distribution"`
}
