package classification

import (
	"strings"
	"sync"
	"time"

	"SignalEngine/internal/domain/models"
	"SignalEngine/pkg/logger"
	"SignalEngine/pkg/util"
)

var (
	majorCryptos     = set("BTC", "ETH")
	secondaryCryptos = set("SOL", "ADA", "DOT", "DOGE", "SHIB")
	stablecoins      = set("USDT", "USDC", "DAI", "BUSD")
	traditional      = set("GOLD", "SILVER", "USD", "EUR", "JPY")
	derivativeBases  = []string{"BTC", "ETH", "SOL"}
)

func set(items ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, i := range items {
		m[i] = struct{}{}
	}
	return m
}

type Option func(*Classifier)

func WithLogger(l *logger.Logger) Option {
	return func(c *Classifier) {
		if l != nil {
			c.logger = l.Component("signal_classifier")
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Classifier) { c.now = now }
}

// Classifier labels signals along independent categorical dimensions.
type Classifier struct {
	mu         sync.RWMutex
	strength   models.StrengthThresholds
	confidence models.ConfidenceThresholds
	logger     *logger.Logger
	now        func() time.Time
}

func NewClassifier(strength models.StrengthThresholds, confidence models.ConfidenceThresholds, opts ...Option) (*Classifier, error) {
	c := &Classifier{logger: logger.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.UpdateConfig(strength, confidence); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateConfig replaces both threshold sets, or neither if one is invalid.
func (c *Classifier) UpdateConfig(strength models.StrengthThresholds, confidence models.ConfidenceThresholds) error {
	if err := strength.Validate(); err != nil {
		return err
	}
	if err := confidence.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.strength, c.confidence = strength, confidence
	c.mu.Unlock()
	c.logger.Info("classification thresholds updated")
	return nil
}

func (c *Classifier) Config() (models.StrengthThresholds, models.ConfidenceThresholds) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.strength, c.confidence
}

func (c *Classifier) ClassifySignal(s *models.Signal) (*models.Classification, error) {
	if err := validate(s); err != nil {
		c.logger.Warn("classification rejected", logger.String("reason", "validation"), logger.Error(err))
		return nil, err
	}
	strengthT, confidenceT := c.Config()

	level := models.DeriveLevel(s.Strength, s.Confidence)
	risk := RiskLevel(s)
	cl := &models.Classification{
		SignalID:           s.SignalID,
		StrengthCategory:   strengthCategory(s.Strength, strengthT),
		ConfidenceCategory: confidenceCategory(s.Confidence, confidenceT),
		Level:              level,
		RiskLevel:          risk,
		TimeSensitivity:    Sensitivity(s),
		AssetClass:         ClassifyAsset(s.Asset),
		TrendAlignment:     alignment(s),
		Category:           category(level, risk),
		ClassifiedAt:       c.now(),
	}
	c.logger.Debug("signal classified",
		logger.String("signal_id", s.SignalID),
		logger.String("level", string(level)),
		logger.String("category", string(cl.Category)),
	)
	return cl, nil
}

// ClassifyMultiple classifies each signal, skipping invalid ones.
func (c *Classifier) ClassifyMultiple(signals []*models.Signal) []*models.Classification {
	out := make([]*models.Classification, 0, len(signals))
	for _, s := range signals {
		if cl, err := c.ClassifySignal(s); err == nil {
			out = append(out, cl)
		}
	}
	return out
}

func (c *Classifier) GetSignalStatistics(signals []*models.Signal) models.ClassificationStatistics {
	stats := models.ClassificationStatistics{
		StrengthDistribution:        map[models.SignalLevel]int{},
		ConfidenceDistribution:      map[models.ConfidenceCategory]int{},
		LevelDistribution:           map[models.SignalLevel]int{},
		RiskDistribution:            map[models.RiskLevel]int{},
		TimeSensitivityDistribution: map[models.TimeSensitivity]int{},
		AssetClassDistribution:      map[models.AssetClass]int{},
		TrendAlignmentDistribution:  map[models.TrendAlignment]int{},
		CategoryDistribution:        map[models.SignalCategory]int{},
		TypeDistribution:            map[models.SignalType]int{},
	}
	for _, s := range signals {
		cl, err := c.ClassifySignal(s)
		if err != nil {
			continue
		}
		stats.Total++
		stats.StrengthDistribution[cl.StrengthCategory]++
		stats.ConfidenceDistribution[cl.ConfidenceCategory]++
		stats.LevelDistribution[cl.Level]++
		stats.RiskDistribution[cl.RiskLevel]++
		stats.TimeSensitivityDistribution[cl.TimeSensitivity]++
		stats.AssetClassDistribution[cl.AssetClass]++
		stats.TrendAlignmentDistribution[cl.TrendAlignment]++
		stats.CategoryDistribution[cl.Category]++
		stats.TypeDistribution[s.Type]++
	}
	return stats
}

func validate(s *models.Signal) error {
	if s == nil {
		return models.NewValidationError("signal", "signal is required")
	}
	if s.SignalID == "" {
		return models.NewValidationError("signal_id", "signal_id is required")
	}
	if s.Asset == "" {
		return models.NewValidationError("asset", "asset is required")
	}
	if s.Type == "" {
		return models.NewValidationError("type", "type is required")
	}
	if err := models.ValidateStrength(s.Strength); err != nil {
		return err
	}
	return models.ValidateConfidence(s.Confidence)
}

func strengthCategory(strength int, t models.StrengthThresholds) models.SignalLevel {
	switch {
	case strength >= t.Extreme:
		return models.LevelExtreme
	case strength >= t.Strong:
		return models.LevelStrong
	case strength >= t.Medium:
		return models.LevelMedium
	case strength >= t.Weak:
		return models.LevelWeak
	default:
		return models.LevelVeryWeak
	}
}

func confidenceCategory(confidence float64, t models.ConfidenceThresholds) models.ConfidenceCategory {
	switch {
	case confidence >= t.High:
		return models.ConfidenceHigh
	case confidence >= t.Medium:
		return models.ConfidenceMedium
	case confidence >= t.Low:
		return models.ConfidenceLow
	default:
		return models.ConfidenceVeryLow
	}
}

// RiskLevel scores risk in tenths: base 5, shifted by type, strength and
// confidence, then banded at 7 and 4.
func RiskLevel(s *models.Signal) models.RiskLevel {
	score := 5
	switch s.Type {
	case models.SignalSell:
		score--
	case models.SignalBuy:
		score++
	case models.SignalAlert:
		score += 2
	}
	switch {
	case s.Strength >= 8:
		score++
	case s.Strength <= 3:
		score--
	}
	switch {
	case s.Confidence >= 0.8:
		score--
	case s.Confidence <= 0.4:
		score++
	}
	switch {
	case score >= 7:
		return models.RiskHigh
	case score >= 4:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// Sensitivity scores urgency in tenths, clamped to [1,10], banded at 8 and 5.
func Sensitivity(s *models.Signal) models.TimeSensitivity {
	score := 5
	switch s.Type {
	case models.SignalAlert:
		score = 9
	case models.SignalBuy, models.SignalSell:
		score = 7
	case models.SignalHold:
		score = 3
	}
	switch {
	case s.Strength >= 8 && s.Confidence >= 0.8:
		score = min(10, score+2)
	case s.Strength <= 3 || s.Confidence <= 0.4:
		score = max(1, score-2)
	}
	switch {
	case score >= 8:
		return models.Urgent
	case score >= 5:
		return models.TimeSensitive
	default:
		return models.NonUrgent
	}
}

func ClassifyAsset(asset string) models.AssetClass {
	a := strings.ToUpper(asset)
	if _, ok := majorCryptos[a]; ok {
		return models.AssetMajorCrypto
	}
	if _, ok := secondaryCryptos[a]; ok {
		return models.AssetSecondaryCrypto
	}
	if _, ok := stablecoins[a]; ok {
		return models.AssetStablecoin
	}
	for _, base := range derivativeBases {
		if len(a) > len(base) && strings.HasSuffix(a, base) {
			return models.AssetDerivative
		}
	}
	if _, ok := traditional[a]; ok {
		return models.AssetTraditional
	}
	return models.AssetOtherCrypto
}

func alignment(s *models.Signal) models.TrendAlignment {
	trend := util.StringDefault(s.MarketData["market_trend"], models.TrendNeutral)
	switch {
	case s.Type == models.SignalBuy && trend == models.TrendUp,
		s.Type == models.SignalSell && trend == models.TrendDown:
		return models.StronglyAligned
	case s.Type == models.SignalBuy && trend == models.TrendDown,
		s.Type == models.SignalSell && trend == models.TrendUp:
		return models.Opposite
	case s.Type == models.SignalHold && trend == models.TrendNeutral:
		return models.Aligned
	default:
		return models.PartiallyAligned
	}
}

func category(level models.SignalLevel, risk models.RiskLevel) models.SignalCategory {
	high := level == models.LevelExtreme || level == models.LevelStrong
	low := level == models.LevelWeak || level == models.LevelVeryWeak
	switch {
	case high && risk != models.RiskHigh:
		return models.CategoryHighQuality
	case high:
		return models.CategoryHighRiskHighReward
	case level == models.LevelMedium && risk == models.RiskMedium:
		return models.CategoryBalanced
	case low && risk == models.RiskLow:
		return models.CategoryLowImpact
	case low && risk == models.RiskHigh:
		return models.CategoryLowConfidenceHighRisk
	default:
		return models.CategoryStandard
	}
}
