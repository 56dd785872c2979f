package history

import (
	"context"
	"time"

	"SignalEngine/internal/domain/models"
)

// OutcomeAccuracy scores a resolved signal: 1 when the move matches the
// signal's direction, 0 when it is the opposite move, 0.5 otherwise.
// Types without a direction (alert, opportunity, risk) always score 0.5.
func OutcomeAccuracy(t models.SignalType, actual string) float64 {
	var expected string
	switch t {
	case models.SignalBuy, models.SignalSell, models.SignalHold:
		expected = t.ExpectedDirection()
	default:
		return 0.5
	}
	switch {
	case actual == expected:
		return 1.0
	case expected == models.TrendUp && actual == models.TrendDown,
		expected == models.TrendDown && actual == models.TrendUp:
		return 0.0
	default:
		return 0.5
	}
}

// GetSignalStatistics summarises entries stamped within [from, to]; both
// bounds are optional. The accuracy block covers completed signals only.
func (s *Service) GetSignalStatistics(ctx context.Context, from, to *time.Time) (*models.HistoryStatistics, error) {
	entries, err := s.entries(ctx)
	if err != nil {
		return nil, err
	}
	tracking, err := s.repo.Tracking(ctx)
	if err != nil {
		return nil, err
	}

	stats := &models.HistoryStatistics{
		TypeDistribution:  map[models.SignalType]int{},
		AssetDistribution: map[string]int{},
		LevelDistribution: map[models.SignalLevel]int{},
	}
	var completed []*models.HistoryEntry
	for _, e := range entries {
		if !models.InRange(e.Timestamp, from, to) {
			continue
		}
		stats.TotalSignals++
		stats.TypeDistribution[e.Type]++
		stats.AssetDistribution[e.Asset]++
		stats.LevelDistribution[e.Level]++
		switch e.Status {
		case models.StatusCompleted:
			stats.CompletedSignals++
			completed = append(completed, e)
		case models.StatusActive:
			stats.ActiveSignals++
		case models.StatusExpired:
			stats.ExpiredSignals++
		case models.StatusCanceled:
			stats.CanceledSignals++
		}
	}
	stats.Accuracy = accuracyStats(completed, tracking)
	return stats, nil
}

func accuracyStats(completed []*models.HistoryEntry, tracking map[string]*models.AccuracyTracking) models.AccuracyStats {
	stats := models.AccuracyStats{
		ByType:  map[string]float64{},
		ByAsset: map[string]float64{},
		ByLevel: map[string]float64{},
	}
	if len(completed) == 0 {
		return stats
	}

	byType := groupMean{}
	byAsset := groupMean{}
	byLevel := groupMean{}
	var sum float64
	for _, e := range completed {
		var acc float64
		if e.Accuracy != nil {
			acc = *e.Accuracy
		}
		sum += acc
		byType.add(string(e.Type), acc)
		byAsset.add(e.Asset, acc)
		byLevel.add(string(e.Level), acc)
		if t, ok := tracking[e.SignalID]; ok {
			stats.TotalPredictions += t.TotalPredictions
			stats.CorrectPredictions += t.CorrectPredictions
		}
	}
	stats.AverageAccuracy = sum / float64(len(completed))
	if stats.TotalPredictions > 0 {
		stats.OverallAccuracy = float64(stats.CorrectPredictions) / float64(stats.TotalPredictions)
	}
	stats.ByType = byType.means()
	stats.ByAsset = byAsset.means()
	stats.ByLevel = byLevel.means()
	return stats
}

type groupMean map[string][2]float64

func (g groupMean) add(key string, v float64) {
	acc := g[key]
	acc[0] += v
	acc[1]++
	g[key] = acc
}

func (g groupMean) means() map[string]float64 {
	out := make(map[string]float64, len(g))
	for k, acc := range g {
		out[k] = acc[0] / acc[1]
	}
	return out
}

// GetAccuracyTracking joins tracking entries back to their signals, keeps the
// ones matching asset and type (empty matches all) and reports
// sum(correct)/sum(total) over them.
func (s *Service) GetAccuracyTracking(ctx context.Context, asset string, signalType models.SignalType) (*models.AccuracyReport, error) {
	entries, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	tracking, err := s.repo.Tracking(ctx)
	if err != nil {
		return nil, err
	}
	bySignal := make(map[string]*models.HistoryEntry, len(entries))
	for _, e := range entries {
		bySignal[e.SignalID] = e
	}

	report := &models.AccuracyReport{Signals: map[string]*models.AccuracyTracking{}}
	for id, t := range tracking {
		e, ok := bySignal[id]
		if !ok {
			continue
		}
		if asset != "" && e.Asset != asset {
			continue
		}
		if signalType != "" && e.Type != signalType {
			continue
		}
		report.Signals[id] = t
		report.TotalPredictions += t.TotalPredictions
		report.CorrectPredictions += t.CorrectPredictions
	}
	if report.TotalPredictions > 0 {
		report.OverallAccuracy = float64(report.CorrectPredictions) / float64(report.TotalPredictions)
	}
	return report, nil
}
