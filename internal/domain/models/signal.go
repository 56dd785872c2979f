package models

import (
	"fmt"
	"strings"
	"time"
)

type SignalType string

const (
	SignalBuy         SignalType = "buy"
	SignalSell        SignalType = "sell"
	SignalHold        SignalType = "hold"
	SignalAlert       SignalType = "alert"
	SignalOpportunity SignalType = "opportunity"
	SignalRisk        SignalType = "risk"
)

// SignalTypes lists every supported signal type.
var SignalTypes = []SignalType{SignalBuy, SignalSell, SignalHold, SignalAlert, SignalOpportunity, SignalRisk}

func (t SignalType) Valid() bool {
	for _, v := range SignalTypes {
		if v == t {
			return true
		}
	}
	return false
}

// ExpectedDirection maps a signal type to the market move it predicts.
// Types that predict no direction return "neutral".
func (t SignalType) ExpectedDirection() string {
	switch t {
	case SignalBuy:
		return TrendUp
	case SignalSell:
		return TrendDown
	default:
		return TrendNeutral
	}
}

type SignalStatus string

const (
	StatusActive    SignalStatus = "active"
	StatusCompleted SignalStatus = "completed"
	StatusExpired   SignalStatus = "expired"
	StatusCanceled  SignalStatus = "canceled"
)

func (s SignalStatus) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusExpired, StatusCanceled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s SignalStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusExpired || s == StatusCanceled
}

type SignalLevel string

const (
	LevelVeryWeak SignalLevel = "very_weak"
	LevelWeak     SignalLevel = "weak"
	LevelMedium   SignalLevel = "medium"
	LevelStrong   SignalLevel = "strong"
	LevelExtreme  SignalLevel = "extreme"
)

// Market directions used by price predictions, market context and outcomes.
const (
	TrendUp      = "up"
	TrendDown    = "down"
	TrendNeutral = "neutral"
)

// Signal is a timestamped recommendation for an asset.
type Signal struct {
	SignalID          string            `json:"signal_id"`
	Asset             string            `json:"asset"`
	Type              SignalType        `json:"type"`
	Strength          int               `json:"strength"`
	Confidence        float64           `json:"confidence"`
	TriggerConditions map[string]any    `json:"trigger_conditions"`
	AIAnalysis        map[string]any    `json:"ai_analysis,omitempty"`
	MarketData        map[string]any    `json:"market_data,omitempty"`
	Timestamp         time.Time         `json:"timestamp"`
	ExpiryTime        time.Time         `json:"expiry_time"`
	Status            SignalStatus      `json:"status"`
	Level             SignalLevel       `json:"level"`
	Description       string            `json:"description"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	UpdatedAt         *time.Time        `json:"updated_at,omitempty"`
}

// Clone returns a deep copy of the signal.
func (s *Signal) Clone() *Signal {
	if s == nil {
		return nil
	}
	c := *s
	c.TriggerConditions = CloneMap(s.TriggerConditions)
	c.AIAnalysis = CloneMap(s.AIAnalysis)
	c.MarketData = CloneMap(s.MarketData)
	if s.Metadata != nil {
		c.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	if s.UpdatedAt != nil {
		t := *s.UpdatedAt
		c.UpdatedAt = &t
	}
	return &c
}

// ExpiredAt reports whether the signal's expiry time has passed at now.
func (s *Signal) ExpiredAt(now time.Time) bool {
	return !s.ExpiryTime.IsZero() && now.After(s.ExpiryTime)
}

// Validate checks required fields, bounds and enums.
func (s *Signal) Validate() error {
	if s == nil {
		return NewValidationError("signal", "signal is required")
	}
	if strings.TrimSpace(s.SignalID) == "" {
		return NewValidationError("signal_id", "signal_id is required")
	}
	if strings.TrimSpace(s.Asset) == "" {
		return NewValidationError("asset", "asset is required")
	}
	if !s.Type.Valid() {
		return NewValidationError("type", fmt.Sprintf("unsupported signal type %q", s.Type))
	}
	if err := ValidateStrength(s.Strength); err != nil {
		return err
	}
	if err := ValidateConfidence(s.Confidence); err != nil {
		return err
	}
	if s.Timestamp.IsZero() {
		return NewValidationError("timestamp", "timestamp is required")
	}
	if s.Status != "" && !s.Status.Valid() {
		return NewValidationError("status", fmt.Sprintf("unsupported status %q", s.Status))
	}
	return nil
}

func ValidateStrength(strength int) error {
	if strength < 1 || strength > 10 {
		return NewValidationError("strength", fmt.Sprintf("strength must be within [1,10], got %d", strength))
	}
	return nil
}

func ValidateConfidence(confidence float64) error {
	if confidence < 0 || confidence > 1 || confidence != confidence {
		return NewValidationError("confidence", fmt.Sprintf("confidence must be within [0,1], got %v", confidence))
	}
	return nil
}

// SignalPatch carries the mutable fields accepted by an update.
type SignalPatch struct {
	Strength          *int              `json:"strength,omitempty"`
	Confidence        *float64          `json:"confidence,omitempty"`
	Type              *SignalType       `json:"type,omitempty"`
	Asset             *string           `json:"asset,omitempty"`
	Status            *SignalStatus     `json:"status,omitempty"`
	ExpiryTime        *time.Time        `json:"expiry_time,omitempty"`
	TriggerConditions map[string]any    `json:"trigger_conditions,omitempty"`
	MarketData        map[string]any    `json:"market_data,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// CloneMap deep-copies nested maps and slices of a JSON-like value tree.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMap(t)
	case []any:
		c := make([]any, len(t))
		for i := range t {
			c[i] = cloneValue(t[i])
		}
		return c
	case []float64:
		return append([]float64(nil), t...)
	default:
		return v
	}
}
