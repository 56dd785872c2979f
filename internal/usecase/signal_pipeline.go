package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalEngine/internal/domain/models"
	"SignalEngine/internal/domain/repository"
	"SignalEngine/internal/domain/service"
	"SignalEngine/internal/services/signals"
	"SignalEngine/pkg/logger"
	"SignalEngine/pkg/metrics"
	"SignalEngine/pkg/util"
)

type SignalGenerator interface {
	GenerateSignal(p signals.Params) (*models.Signal, error)
	GenerateFromAIAnalysis(aiAnalysis, marketData map[string]any) []*models.Signal
}

type SignalEvaluator interface {
	EvaluateSignal(s *models.Signal, historical map[string]any) (*models.Evaluation, error)
}

type SignalClassifier interface {
	ClassifySignal(s *models.Signal) (*models.Classification, error)
}

type RuleEvaluator interface {
	EvaluateRules(ctx context.Context, snapshot map[string]any) ([]*models.Rule, error)
}

type SignalHistory interface {
	AddSignalToHistory(ctx context.Context, s *models.Signal) (*models.HistoryEntry, error)
	UpdateSignalOutcome(ctx context.Context, signalID string, outcome models.Outcome) (*models.HistoryEntry, error)
}

// PipelineResult is what happened to one emitted signal.
type PipelineResult struct {
	Signal         *models.Signal         `json:"signal"`
	HistoryID      string                 `json:"history_id"`
	Evaluation     *models.Evaluation     `json:"evaluation"`
	Classification *models.Classification `json:"classification"`
	Notifications  []*models.Notification `json:"notifications"`
	RuleID         string                 `json:"rule_id,omitempty"`
	NotifyError    string                 `json:"notify_error,omitempty"`
}

// SignalPipeline runs emitted signals through evaluation, classification,
// history, publication and notification.
type SignalPipeline struct {
	generator  SignalGenerator
	evaluator  SignalEvaluator
	classifier SignalClassifier
	rules      RuleEvaluator
	history    SignalHistory
	dispatcher service.Dispatcher
	publisher  repository.SignalPublisher
	metrics    repository.Metrics
	logger     *logger.Logger
}

// PipelineDeps groups the collaborators of the pipeline.
type PipelineDeps struct {
	Generator  SignalGenerator
	Evaluator  SignalEvaluator
	Classifier SignalClassifier
	Rules      RuleEvaluator
	History    SignalHistory
	Dispatcher service.Dispatcher
	Publisher  repository.SignalPublisher
	Metrics    repository.Metrics
	Logger     *logger.Logger
}

func NewSignalPipeline(d PipelineDeps) *SignalPipeline {
	p := &SignalPipeline{
		generator:  d.Generator,
		evaluator:  d.Evaluator,
		classifier: d.Classifier,
		rules:      d.Rules,
		history:    d.History,
		dispatcher: d.Dispatcher,
		publisher:  d.Publisher,
		metrics:    d.Metrics,
		logger:     logger.NewNop(),
	}
	if p.metrics == nil {
		p.metrics = metrics.Nop{}
	}
	if d.Logger != nil {
		p.logger = d.Logger.Component("signal_pipeline")
	}
	return p
}

// ProcessAIAnalysis generates signals from one AI analysis and runs each of
// them through the rest of the pipeline. Historical context for evaluation
// is read from market_data.historical_data when present.
func (p *SignalPipeline) ProcessAIAnalysis(ctx context.Context, aiAnalysis, marketData map[string]any, userIDs []string) ([]*PipelineResult, error) {
	start := time.Now()
	defer func() { p.metrics.RecordLatency("pipeline_ai_analysis", time.Since(start).Seconds()) }()

	if len(aiAnalysis) == 0 {
		return nil, models.NewValidationError("ai_analysis", "ai_analysis must not be empty")
	}
	generated := p.generator.GenerateFromAIAnalysis(aiAnalysis, marketData)
	historical := util.MapValue(marketData["historical_data"])

	out := make([]*PipelineResult, 0, len(generated))
	for _, s := range generated {
		res, err := p.process(ctx, s, historical, userIDs)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	p.logger.Info("ai analysis processed",
		logger.Int("signals", len(out)),
		logger.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

// ProcessSnapshot evaluates the stored rules against a market snapshot and
// executes the generate_signal actions of every matched rule. Actions that
// the generator rejects are logged and skipped.
func (p *SignalPipeline) ProcessSnapshot(ctx context.Context, snapshot map[string]any, userIDs []string) ([]*PipelineResult, error) {
	start := time.Now()
	defer func() { p.metrics.RecordLatency("pipeline_snapshot", time.Since(start).Seconds()) }()

	matched, err := p.rules.EvaluateRules(ctx, snapshot)
	if err != nil {
		return nil, fmt.Errorf("evaluate rules: %w", err)
	}
	historical := util.MapValue(snapshot["historical_data"])
	snapshotAsset := util.StringDefault(snapshot["asset"], "")

	var out []*PipelineResult
	for _, r := range matched {
		for _, a := range r.Actions {
			if a.Type != models.ActionGenerateSignal {
				continue
			}
			asset := a.Asset
			if asset == models.AssetAll && snapshotAsset != "" {
				asset = snapshotAsset
			}
			s, err := p.generator.GenerateSignal(signals.Params{
				Asset:      asset,
				Type:       a.SignalType,
				Strength:   a.Strength,
				Confidence: a.Confidence,
				TriggerConditions: map[string]any{
					"rule_id":   r.RuleID,
					"rule_name": r.Name,
					"rule_type": string(r.Type),
				},
				MarketData: snapshot,
			})
			if err != nil {
				p.logger.Warn("rule action rejected",
					logger.String("rule_id", r.RuleID),
					logger.String("reason", models.SkipReason(err)),
					logger.Error(err),
				)
				continue
			}
			res, err := p.process(ctx, s, historical, userIDs)
			if err != nil {
				return out, err
			}
			res.RuleID = r.RuleID
			out = append(out, res)
		}
	}
	p.logger.Info("snapshot processed",
		logger.Int("matched_rules", len(matched)),
		logger.Int("signals", len(out)),
	)
	return out, nil
}

func (p *SignalPipeline) process(ctx context.Context, s *models.Signal, historical map[string]any, userIDs []string) (*PipelineResult, error) {
	eval, err := p.evaluator.EvaluateSignal(s, historical)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", s.SignalID, err)
	}
	class, err := p.classifier.ClassifySignal(s)
	if err != nil {
		return nil, fmt.Errorf("classify %s: %w", s.SignalID, err)
	}
	entry, err := p.history.AddSignalToHistory(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", s.SignalID, err)
	}
	res := &PipelineResult{
		Signal:         s,
		HistoryID:      entry.HistoryID,
		Evaluation:     eval,
		Classification: class,
		Notifications:  []*models.Notification{},
	}

	if p.publisher != nil {
		if err := p.publisher.PublishSignal(ctx, s); err != nil {
			p.metrics.RecordError("publish_signal")
			p.logger.Error("publish signal failed", logger.String("signal_id", s.SignalID), logger.Error(err))
		}
	}

	if p.dispatcher != nil {
		sent, err := p.dispatcher.Dispatch(ctx, s, userIDs)
		switch {
		case err != nil:
			p.metrics.RecordError("dispatch")
			p.logger.Error("dispatch failed", logger.String("signal_id", s.SignalID), logger.Error(err))
			res.NotifyError = err.Error()
		case sent != nil:
			res.Notifications = sent
		}
	}
	return res, nil
}

// ResolveOutcome records the realised outcome and announces it downstream.
func (p *SignalPipeline) ResolveOutcome(ctx context.Context, signalID string, outcome models.Outcome) (*models.HistoryEntry, error) {
	entry, err := p.history.UpdateSignalOutcome(ctx, signalID, outcome)
	if err != nil {
		return nil, err
	}
	if p.publisher != nil {
		if err := p.publisher.PublishOutcome(ctx, entry); err != nil {
			p.metrics.RecordError("publish_outcome")
			p.logger.Error("publish outcome failed", logger.String("signal_id", signalID), logger.Error(err))
		}
	}
	return entry, nil
}

// ackable reports errors that a retry cannot fix.
func ackable(err error) bool {
	return errors.Is(err, models.ErrValidation) ||
		errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, models.ErrConflict) ||
		errors.Is(err, models.ErrPolicySkip)
}
