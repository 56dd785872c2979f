package models

import (
	"fmt"
	"time"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

type ConfidenceCategory string

const (
	ConfidenceHigh    ConfidenceCategory = "high"
	ConfidenceMedium  ConfidenceCategory = "medium"
	ConfidenceLow     ConfidenceCategory = "low"
	ConfidenceVeryLow ConfidenceCategory = "very_low"
)

type TimeSensitivity string

const (
	Urgent        TimeSensitivity = "urgent"
	TimeSensitive TimeSensitivity = "time-sensitive"
	NonUrgent     TimeSensitivity = "non-urgent"
)

type AssetClass string

const (
	AssetMajorCrypto     AssetClass = "major_crypto"
	AssetSecondaryCrypto AssetClass = "secondary_crypto"
	AssetStablecoin      AssetClass = "stablecoin"
	AssetDerivative      AssetClass = "derivative_crypto"
	AssetTraditional     AssetClass = "traditional_asset"
	AssetOtherCrypto     AssetClass = "other_crypto"
)

type TrendAlignment string

const (
	StronglyAligned  TrendAlignment = "strongly_aligned"
	Aligned          TrendAlignment = "aligned"
	PartiallyAligned TrendAlignment = "partially_aligned"
	Opposite         TrendAlignment = "opposite"
)

type SignalCategory string

const (
	CategoryHighQuality           SignalCategory = "high_quality"
	CategoryHighRiskHighReward    SignalCategory = "high_risk_high_reward"
	CategoryBalanced              SignalCategory = "balanced"
	CategoryLowImpact             SignalCategory = "low_impact"
	CategoryLowConfidenceHighRisk SignalCategory = "low_confidence_high_risk"
	CategoryStandard              SignalCategory = "standard"
)

// Classification is the set of independent labels derived for one signal.
type Classification struct {
	SignalID           string             `json:"signal_id"`
	StrengthCategory   SignalLevel        `json:"strength_category"`
	ConfidenceCategory ConfidenceCategory `json:"confidence_category"`
	Level              SignalLevel        `json:"level"`
	RiskLevel          RiskLevel          `json:"risk_level"`
	TimeSensitivity    TimeSensitivity    `json:"time_sensitivity"`
	AssetClass         AssetClass         `json:"asset_class"`
	TrendAlignment     TrendAlignment     `json:"trend_alignment"`
	Category           SignalCategory     `json:"comprehensive_category"`
	ClassifiedAt       time.Time          `json:"classified_at"`
}

type ClassificationStatistics struct {
	Total                       int                        `json:"total_signals"`
	StrengthDistribution        map[SignalLevel]int        `json:"strength_category_distribution"`
	ConfidenceDistribution      map[ConfidenceCategory]int `json:"confidence_category_distribution"`
	LevelDistribution           map[SignalLevel]int        `json:"level_distribution"`
	RiskDistribution            map[RiskLevel]int          `json:"risk_distribution"`
	TimeSensitivityDistribution map[TimeSensitivity]int    `json:"time_sensitivity_distribution"`
	AssetClassDistribution      map[AssetClass]int         `json:"asset_class_distribution"`
	TrendAlignmentDistribution  map[TrendAlignment]int     `json:"trend_alignment_distribution"`
	CategoryDistribution        map[SignalCategory]int     `json:"comprehensive_category_distribution"`
	TypeDistribution            map[SignalType]int         `json:"type_distribution"`
}

// StrengthThresholds are the lower bounds of the strength categories.
type StrengthThresholds struct {
	Extreme int `json:"extreme" yaml:"extreme"`
	Strong  int `json:"strong" yaml:"strong"`
	Medium  int `json:"medium" yaml:"medium"`
	Weak    int `json:"weak" yaml:"weak"`
}

func DefaultStrengthThresholds() StrengthThresholds {
	return StrengthThresholds{Extreme: 9, Strong: 7, Medium: 5, Weak: 3}
}

func (t StrengthThresholds) Validate() error {
	if !(t.Extreme > t.Strong && t.Strong > t.Medium && t.Medium > t.Weak && t.Weak >= 0 && t.Extreme <= 10) {
		return NewValidationError("strength_thresholds", fmt.Sprintf("thresholds must be strictly descending within [0,10], got %+v", t))
	}
	return nil
}

// ConfidenceThresholds are the lower bounds of the confidence categories.
type ConfidenceThresholds struct {
	High   float64 `json:"high" yaml:"high"`
	Medium float64 `json:"medium" yaml:"medium"`
	Low    float64 `json:"low" yaml:"low"`
}

func DefaultConfidenceThresholds() ConfidenceThresholds {
	return ConfidenceThresholds{High: 0.8, Medium: 0.5, Low: 0.3}
}

func (t ConfidenceThresholds) Validate() error {
	if !(t.High > t.Medium && t.Medium > t.Low && t.Low >= 0 && t.High <= 1) {
		return NewValidationError("confidence_thresholds", fmt.Sprintf("thresholds must be strictly descending within [0,1], got %+v", t))
	}
	return nil
}
