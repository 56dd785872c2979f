package rules

import "SignalEngine/internal/domain/models"

// DefaultRules returns the built-in rule set seeded at startup.
func DefaultRules() []*models.Rule {
	return []*models.Rule{
		{
			Name:        "BTC breakout",
			Description: "BTC short moving average crosses above price on rising volume",
			Type:        models.RuleTrend,
			Priority:    5,
			Status:      models.RuleEnabled,
			Conditions: []models.Condition{
				{Parameter: "price.ma_20", Operator: models.OpCrossAbove, Value: "price.current"},
				{Parameter: "volume.change", Operator: models.OpGreaterThan, Value: 0.5},
			},
			Actions: []models.Action{
				{Type: models.ActionGenerateSignal, SignalType: models.SignalBuy, Asset: "BTC", Strength: 8, Confidence: 0.7},
			},
		},
		{
			Name:        "ETH breakdown",
			Description: "ETH long moving average crosses below price with negative sentiment",
			Type:        models.RuleTrend,
			Priority:    5,
			Status:      models.RuleEnabled,
			Conditions: []models.Condition{
				{Parameter: "price.ma_50", Operator: models.OpCrossBelow, Value: "price.current"},
				{Parameter: "sentiment.average", Operator: models.OpLessThan, Value: -0.3},
			},
			Actions: []models.Action{
				{Type: models.ActionGenerateSignal, SignalType: models.SignalSell, Asset: "ETH", Strength: 7, Confidence: 0.6},
			},
		},
		{
			Name:        "Market anomaly",
			Description: "High volatility with a high anomaly risk",
			Type:        models.RuleAnomaly,
			Priority:    8,
			Status:      models.RuleEnabled,
			Conditions: []models.Condition{
				{Parameter: "price.volatility", Operator: models.OpGreaterThan, Value: 0.05},
				{Parameter: "anomaly.risk", Operator: models.OpEquals, Value: "high"},
			},
			Actions: []models.Action{
				{Type: models.ActionGenerateSignal, SignalType: models.SignalAlert, Asset: models.AssetAll, Strength: 9, Confidence: 0.8},
			},
		},
	}
}
