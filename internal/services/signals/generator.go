package signals

import (
	"fmt"
	"math"
	"time"

	"SignalEngine/internal/domain/models"
	"SignalEngine/internal/domain/repository"
	"SignalEngine/pkg/logger"
	"SignalEngine/pkg/metrics"
	"SignalEngine/pkg/util"
)

const (
	DefaultMinConfidence = 0.5
	DefaultExpiry        = 24 * time.Hour
	defaultAsset         = "BTC"

	sentimentThreshold = 0.3
	priceThreshold     = 0.02
	anomalyConfidence  = 0.7
)

type Config struct {
	MinConfidence float64
	SignalExpiry  time.Duration
}

// Params are the inputs of a single signal generation.
type Params struct {
	Asset             string
	Type              models.SignalType
	Strength          int
	Confidence        float64
	TriggerConditions map[string]any
	AIAnalysis        map[string]any
	MarketData        map[string]any
}

type Option func(*Generator)

func WithLogger(l *logger.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l.Component("signal_generator")
		}
	}
}

func WithMetrics(m repository.Metrics) Option {
	return func(g *Generator) {
		if m != nil {
			g.metrics = m
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// Generator builds signals from explicit parameters or AI analysis output.
type Generator struct {
	cfg     Config
	logger  *logger.Logger
	metrics repository.Metrics
	now     func() time.Time
}

func NewGenerator(cfg Config, opts ...Option) *Generator {
	if cfg.SignalExpiry <= 0 {
		cfg.SignalExpiry = DefaultExpiry
	}
	g := &Generator{
		cfg:     cfg,
		logger:  logger.NewNop(),
		metrics: metrics.Nop{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateSignal validates p and builds an active signal. Out-of-range
// strength or confidence returns a validation error; confidence below the
// configured floor returns a *models.PolicySkip.
func (g *Generator) GenerateSignal(p Params) (*models.Signal, error) {
	if err := g.check(p); err != nil {
		g.reject(p, err)
		return nil, err
	}

	now := g.now()
	s := &models.Signal{
		SignalID:          util.ShortID("signal"),
		Asset:             p.Asset,
		Type:              p.Type,
		Strength:          p.Strength,
		Confidence:        p.Confidence,
		TriggerConditions: nonNil(models.CloneMap(p.TriggerConditions)),
		AIAnalysis:        nonNil(models.CloneMap(p.AIAnalysis)),
		MarketData:        nonNil(models.CloneMap(p.MarketData)),
		Timestamp:         now,
		ExpiryTime:        now.Add(g.cfg.SignalExpiry),
		Status:            models.StatusActive,
		Metadata:          map[string]string{"source": "ai_generated", "version": "1.0"},
	}
	s.Level = models.DeriveLevel(s.Strength, s.Confidence)
	s.Description = models.DeriveDescription(s)

	g.metrics.RecordSignalGenerated(string(s.Type), s.Asset)
	g.logger.Info("signal generated",
		logger.String("signal_id", s.SignalID),
		logger.String("asset", s.Asset),
		logger.String("type", string(s.Type)),
		logger.Int("strength", s.Strength),
		logger.Float64("confidence", s.Confidence),
		logger.String("level", string(s.Level)),
	)
	return s, nil
}

func (g *Generator) check(p Params) error {
	if p.Asset == "" {
		return models.NewValidationError("asset", "asset is required")
	}
	if !p.Type.Valid() {
		return models.NewValidationError("type", fmt.Sprintf("unsupported signal type %q", p.Type))
	}
	if err := models.ValidateStrength(p.Strength); err != nil {
		return err
	}
	if err := models.ValidateConfidence(p.Confidence); err != nil {
		return err
	}
	if p.Confidence < g.cfg.MinConfidence {
		return &models.PolicySkip{Reason: fmt.Sprintf("confidence %.2f below minimum %.2f", p.Confidence, g.cfg.MinConfidence)}
	}
	return nil
}

func (g *Generator) reject(p Params, err error) {
	reason := models.SkipReason(err)
	g.metrics.RecordSignalSkipped(reason)
	fields := []logger.Field{
		logger.String("reason", reason),
		logger.String("asset", p.Asset),
		logger.String("type", string(p.Type)),
		logger.Error(err),
	}
	if reason == "policy_skip" {
		g.logger.Info("signal skipped", fields...)
		return
	}
	g.logger.Warn("signal rejected", fields...)
}

// GenerateFromAIAnalysis fans the analysis out into at most one signal per
// sub-block (sentiment, price prediction, anomaly detection). Sub-blocks that
// are rejected or skipped are logged and left out of the result.
func (g *Generator) GenerateFromAIAnalysis(aiAnalysis, marketData map[string]any) []*models.Signal {
	asset := util.StringDefault(marketData["asset"], defaultAsset)
	var out []*models.Signal

	blocks := []struct {
		key   string
		build func(block map[string]any) (Params, bool)
	}{
		{"sentiment_analysis", sentimentParams},
		{"price_prediction", priceParams},
		{"anomaly_detection", anomalyParams},
	}
	for _, b := range blocks {
		block := util.MapValue(aiAnalysis[b.key])
		if len(block) == 0 {
			continue
		}
		p, ok := b.build(block)
		if !ok {
			g.metrics.RecordSignalSkipped("policy_skip")
			g.logger.Info("signal skipped", logger.String("reason", "policy_skip"), logger.String("source", b.key), logger.String("asset", asset))
			continue
		}
		p.Asset = asset
		p.AIAnalysis = map[string]any{b.key: block}
		p.MarketData = marketData
		if s, err := g.GenerateSignal(p); err == nil {
			out = append(out, s)
		}
	}
	return out
}

func sentimentParams(block map[string]any) (Params, bool) {
	score := util.FloatDefault(block["average_sentiment"], 0)
	confidence := util.FloatDefault(block["confidence"], 0.5)

	p := Params{
		Type:       models.SignalHold,
		Strength:   3,
		Confidence: confidence,
		TriggerConditions: map[string]any{
			"sentiment_score": score,
			"confidence":      confidence,
			"threshold":       sentimentThreshold,
		},
	}
	switch {
	case score > sentimentThreshold:
		p.Type, p.Strength = models.SignalBuy, scaledStrength(score, 10)
	case score < -sentimentThreshold:
		p.Type, p.Strength = models.SignalSell, scaledStrength(score, 10)
	}
	return p, true
}

func priceParams(block map[string]any) (Params, bool) {
	trend := util.StringDefault(block["predicted_trend"], "stable")
	change := util.FloatDefault(block["predicted_change"], 0)
	confidence := util.FloatDefault(block["confidence"], 0.5)

	p := Params{
		Type:       models.SignalHold,
		Strength:   3,
		Confidence: confidence,
		TriggerConditions: map[string]any{
			"predicted_trend":  trend,
			"predicted_change": change,
			"confidence":       confidence,
			"threshold":        priceThreshold,
		},
	}
	switch {
	case trend == models.TrendUp && change > priceThreshold:
		p.Type, p.Strength = models.SignalBuy, scaledStrength(change, 200)
	case trend == models.TrendDown && change < -priceThreshold:
		p.Type, p.Strength = models.SignalSell, scaledStrength(change, 200)
	}
	return p, true
}

// anomalyParams reports false for low risk, which never produces a signal.
func anomalyParams(block map[string]any) (Params, bool) {
	risk := util.StringDefault(block["anomaly_risk"], "low")
	count := block["anomaly_count"]
	if count == nil {
		count = 0
	}

	var strength int
	switch risk {
	case "high":
		strength = 8
	case "medium":
		strength = 5
	default:
		return Params{}, false
	}
	return Params{
		Type:       models.SignalAlert,
		Strength:   strength,
		Confidence: anomalyConfidence,
		TriggerConditions: map[string]any{
			"anomaly_risk":  risk,
			"anomaly_count": count,
			"threshold":     "medium",
		},
	}, true
}

// scaledStrength is min(10, trunc(5 + |x|*factor)).
func scaledStrength(x, factor float64) int {
	v := int(5 + math.Abs(x)*factor)
	if v > 10 {
		return 10
	}
	return v
}

// UpdateSignal applies patch to a copy of s, re-validates it and re-derives
// level and description. On error s is untouched and nil is returned.
func (g *Generator) UpdateSignal(s *models.Signal, patch models.SignalPatch) (*models.Signal, error) {
	if s == nil {
		return nil, models.NewValidationError("signal", "signal is required")
	}
	next := s.Clone()
	if patch.Strength != nil {
		next.Strength = *patch.Strength
	}
	if patch.Confidence != nil {
		next.Confidence = *patch.Confidence
	}
	if patch.Type != nil {
		next.Type = *patch.Type
	}
	if patch.Asset != nil {
		next.Asset = *patch.Asset
	}
	if patch.Status != nil {
		next.Status = *patch.Status
	}
	if patch.ExpiryTime != nil {
		next.ExpiryTime = *patch.ExpiryTime
	}
	if patch.TriggerConditions != nil {
		next.TriggerConditions = models.CloneMap(patch.TriggerConditions)
	}
	if patch.MarketData != nil {
		next.MarketData = models.CloneMap(patch.MarketData)
	}
	for k, v := range patch.Metadata {
		if next.Metadata == nil {
			next.Metadata = map[string]string{}
		}
		next.Metadata[k] = v
	}

	if err := next.Validate(); err != nil {
		g.logger.Warn("signal update rejected", logger.String("reason", "validation"), logger.String("signal_id", s.SignalID), logger.Error(err))
		return nil, err
	}
	next.Level = models.DeriveLevel(next.Strength, next.Confidence)
	next.Description = models.DeriveDescription(next)
	now := g.now()
	next.UpdatedAt = &now
	return next, nil
}

// ValidateSignal checks that s is complete and within bounds.
func (g *Generator) ValidateSignal(s *models.Signal) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.Status == "" {
		return models.NewValidationError("status", "status is required")
	}
	return nil
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
