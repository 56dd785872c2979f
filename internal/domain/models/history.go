package models

import (
	"fmt"
	"time"
)

// Outcome is the realised market move reported for a signal.
type Outcome struct {
	ActualOutcome string   `json:"actual_outcome"`
	PriceChange   *float64 `json:"price_change,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

// Normalize applies the neutral default and rejects unknown directions.
func (o *Outcome) Normalize() error {
	if o.ActualOutcome == "" {
		o.ActualOutcome = TrendNeutral
	}
	switch o.ActualOutcome {
	case TrendUp, TrendDown, TrendNeutral:
		return nil
	}
	return NewValidationError("actual_outcome", fmt.Sprintf("unsupported outcome %q", o.ActualOutcome))
}

// HistoryEntry is a signal as emitted plus the history bookkeeping fields.
type HistoryEntry struct {
	Signal
	HistoryID        string     `json:"history_id"`
	AddedToHistoryAt time.Time  `json:"added_to_history_at"`
	Outcome          *Outcome   `json:"outcome"`
	Accuracy         *float64   `json:"accuracy"`
	OutcomeUpdatedAt *time.Time `json:"outcome_updated_at,omitempty"`
}

func (e *HistoryEntry) Clone() *HistoryEntry {
	if e == nil {
		return nil
	}
	c := *e
	c.Signal = *e.Signal.Clone()
	if e.Outcome != nil {
		o := *e.Outcome
		c.Outcome = &o
	}
	if e.Accuracy != nil {
		a := *e.Accuracy
		c.Accuracy = &a
	}
	if e.OutcomeUpdatedAt != nil {
		t := *e.OutcomeUpdatedAt
		c.OutcomeUpdatedAt = &t
	}
	return &c
}

// HistoryID names the seq-th (zero-based) history append of a signal.
func HistoryID(seq int64, signalID string) string {
	return fmt.Sprintf("hist_%d_%s", seq, signalID)
}

// PredictionRecord is one resolved outcome in a tracking entry.
type PredictionRecord struct {
	ActualOutcome string    `json:"actual_outcome"`
	Accuracy      float64   `json:"accuracy"`
	Timestamp     time.Time `json:"timestamp"`
}

// AccuracyTracking is the running tally for one signal id.
type AccuracyTracking struct {
	SignalID           string             `json:"signal_id"`
	TotalPredictions   int                `json:"total_predictions"`
	CorrectPredictions int                `json:"correct_predictions"`
	Accuracy           float64            `json:"accuracy"`
	Predictions        []PredictionRecord `json:"predictions"`
}

func (t *AccuracyTracking) Clone() *AccuracyTracking {
	if t == nil {
		return nil
	}
	c := *t
	c.Predictions = append([]PredictionRecord(nil), t.Predictions...)
	return &c
}

// Record adds one resolved prediction. Accuracy >= 0.5 counts as correct.
func (t *AccuracyTracking) Record(outcome string, accuracy float64, at time.Time) {
	t.TotalPredictions++
	if accuracy >= 0.5 {
		t.CorrectPredictions++
	}
	t.Accuracy = float64(t.CorrectPredictions) / float64(t.TotalPredictions)
	t.Predictions = append(t.Predictions, PredictionRecord{ActualOutcome: outcome, Accuracy: accuracy, Timestamp: at})
}

// HistoryFilter narrows history queries. Zero values match everything.
type HistoryFilter struct {
	Asset  string
	Type   SignalType
	Status SignalStatus
	Level  SignalLevel
	From   *time.Time
	To     *time.Time
}

func (f HistoryFilter) Match(e *HistoryEntry) bool {
	if f.Asset != "" && e.Asset != f.Asset {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.Level != "" && e.Level != f.Level {
		return false
	}
	return InRange(e.Timestamp, f.From, f.To)
}

// InRange reports whether t lies in the optional closed interval [from, to].
func InRange(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && t.After(*to) {
		return false
	}
	return true
}

type AccuracyStats struct {
	AverageAccuracy    float64            `json:"average_accuracy"`
	OverallAccuracy    float64            `json:"overall_accuracy"`
	CorrectPredictions int                `json:"correct_predictions"`
	TotalPredictions   int                `json:"total_predictions"`
	ByType             map[string]float64 `json:"by_type"`
	ByAsset            map[string]float64 `json:"by_asset"`
	ByLevel            map[string]float64 `json:"by_level"`
}

type HistoryStatistics struct {
	TotalSignals      int                 `json:"total_signals"`
	CompletedSignals  int                 `json:"completed_signals"`
	ActiveSignals     int                 `json:"active_signals"`
	ExpiredSignals    int                 `json:"expired_signals"`
	CanceledSignals   int                 `json:"canceled_signals"`
	TypeDistribution  map[SignalType]int  `json:"type_distribution"`
	AssetDistribution map[string]int      `json:"asset_distribution"`
	LevelDistribution map[SignalLevel]int `json:"level_distribution"`
	Accuracy          AccuracyStats       `json:"accuracy_stats"`
}

// AccuracyReport is the filtered aggregate returned by get_accuracy_tracking.
type AccuracyReport struct {
	OverallAccuracy    float64                      `json:"overall_accuracy"`
	TotalPredictions   int                          `json:"total_predictions"`
	CorrectPredictions int                          `json:"correct_predictions"`
	Signals            map[string]*AccuracyTracking `json:"signals"`
}
