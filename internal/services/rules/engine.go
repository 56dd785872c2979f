package rules

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"SignalEngine/internal/domain/models"
	"SignalEngine/internal/domain/repository"
	"SignalEngine/pkg/logger"
	"SignalEngine/pkg/util"
)

// parallelThreshold is the rule count from which matching fans out.
const parallelThreshold = 64

// Option configures Engine.
type Option func(*Engine)

func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l.Component("rule_engine")
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithStrategies(s map[models.RuleType]Strategy) Option {
	return func(e *Engine) { e.strategies = s }
}

// Engine stores rules and evaluates them against data snapshots.
type Engine struct {
	repo       repository.RuleRepository
	locker     repository.KeyLocker
	strategies map[models.RuleType]Strategy
	logger     *logger.Logger
	now        func() time.Time
}

func NewEngine(repo repository.RuleRepository, locker repository.KeyLocker, opts ...Option) *Engine {
	e := &Engine{
		repo:       repo,
		locker:     locker,
		strategies: DefaultStrategies(),
		logger:     logger.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddRule validates and stores a copy of rule, returning its id. Priority
// must be within [1,10]; decoding fills DefaultRulePriority when it is
// absent.
func (e *Engine) AddRule(ctx context.Context, rule *models.Rule) (string, error) {
	if rule == nil {
		return "", models.NewValidationError("rule", "rule is required")
	}
	r := rule.Clone()
	if r.RuleID == "" {
		r.RuleID = util.ShortID("rule")
	}
	if r.Status == "" {
		r.Status = models.RuleEnabled
	}
	if err := e.validate(r); err != nil {
		e.logger.Warn("rule rejected", logger.String("reason", "validation"), logger.String("name", r.Name), logger.Error(err))
		return "", err
	}

	unlock, err := e.locker.Lock(ctx, ruleLockKey(r.RuleID))
	if err != nil {
		return "", err
	}
	defer unlock()

	if existing, err := e.repo.Get(ctx, r.RuleID); err == nil && existing != nil {
		return "", fmt.Errorf("rule %q already exists: %w", r.RuleID, models.ErrConflict)
	} else if err != nil && !errors.Is(err, models.ErrNotFound) {
		return "", err
	}

	now := e.now()
	r.CreatedAt, r.UpdatedAt = now, now
	if err := e.repo.Save(ctx, r); err != nil {
		return "", fmt.Errorf("save rule: %w", err)
	}
	e.logger.Info("rule added", logger.String("rule_id", r.RuleID), logger.String("name", r.Name))
	return r.RuleID, nil
}

// UpdateRule applies patch to a copy, re-validates, and only then stores it.
func (e *Engine) UpdateRule(ctx context.Context, id string, patch models.RulePatch) (*models.Rule, error) {
	unlock, err := e.locker.Lock(ctx, ruleLockKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := e.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next := current.Clone()
	applyPatch(next, patch)
	if err := e.validate(next); err != nil {
		e.logger.Warn("rule update rejected", logger.String("reason", "validation"), logger.String("rule_id", id), logger.Error(err))
		return nil, err
	}
	next.UpdatedAt = e.now()
	if err := e.repo.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("save rule: %w", err)
	}
	e.logger.Info("rule updated", logger.String("rule_id", id))
	return next.Clone(), nil
}

func (e *Engine) RemoveRule(ctx context.Context, id string) error {
	unlock, err := e.locker.Lock(ctx, ruleLockKey(id))
	if err != nil {
		return err
	}
	defer unlock()

	ok, err := e.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return models.NotFound("rule", id)
	}
	e.logger.Info("rule removed", logger.String("rule_id", id))
	return nil
}

func (e *Engine) GetRule(ctx context.Context, id string) (*models.Rule, error) {
	return e.repo.Get(ctx, id)
}

func (e *Engine) GetAllRules(ctx context.Context) ([]*models.Rule, error) {
	return e.repo.List(ctx)
}

func (e *Engine) GetRulesByType(ctx context.Context, t models.RuleType) ([]*models.Rule, error) {
	all, err := e.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Rule, 0, len(all))
	for _, r := range all {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out, nil
}

// LoadRules adds each rule and returns how many were accepted.
func (e *Engine) LoadRules(ctx context.Context, rules []*models.Rule) int {
	count := 0
	for _, r := range rules {
		if _, err := e.AddRule(ctx, r); err != nil {
			continue
		}
		count++
	}
	return count
}

// SaveRules returns every stored rule for persistence.
func (e *Engine) SaveRules(ctx context.Context) ([]*models.Rule, error) {
	return e.repo.List(ctx)
}

// EvaluateRules returns the enabled rules whose conditions all hold for the
// snapshot, ordered by priority descending. Ties keep insertion order.
func (e *Engine) EvaluateRules(ctx context.Context, snapshot map[string]any) ([]*models.Rule, error) {
	all, err := e.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	enabled := all[:0]
	for _, r := range all {
		if r.Enabled() {
			enabled = append(enabled, r)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool { return enabled[i].Priority > enabled[j].Priority })

	matched := make([]bool, len(enabled))
	if len(enabled) >= parallelThreshold {
		var wg sync.WaitGroup
		for i := range enabled {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				matched[i] = e.match(enabled[i], snapshot)
			}(i)
		}
		wg.Wait()
	} else {
		for i, r := range enabled {
			matched[i] = e.match(r, snapshot)
		}
	}

	out := make([]*models.Rule, 0, len(enabled))
	for i, r := range enabled {
		if matched[i] {
			out = append(out, r)
		}
	}
	e.logger.Debug("rules evaluated", logger.Int("enabled", len(enabled)), logger.Int("matched", len(out)))
	return out, nil
}

func (e *Engine) match(r *models.Rule, snapshot map[string]any) bool {
	s, ok := e.strategies[r.Type]
	if !ok {
		return false
	}
	return s.Match(r.Conditions, snapshot)
}

// Validate checks a rule without storing it.
func (e *Engine) Validate(r *models.Rule) error {
	c := r.Clone()
	if c.Status == "" {
		c.Status = models.RuleEnabled
	}
	return e.validate(c)
}

func (e *Engine) validate(r *models.Rule) error {
	if strings.TrimSpace(r.Name) == "" {
		return models.NewValidationError("name", "name is required")
	}
	if strings.TrimSpace(r.Description) == "" {
		return models.NewValidationError("description", "description is required")
	}
	if !r.Type.Valid() {
		return models.NewValidationError("type", fmt.Sprintf("unsupported rule type %q", r.Type))
	}
	if len(r.Conditions) == 0 {
		return models.NewValidationError("conditions", "conditions must not be empty")
	}
	if len(r.Actions) == 0 {
		return models.NewValidationError("actions", "actions must not be empty")
	}
	if r.Priority < 1 || r.Priority > 10 {
		return models.NewValidationError("priority", fmt.Sprintf("priority must be within [1,10], got %d", r.Priority))
	}
	if r.Status != models.RuleEnabled && r.Status != models.RuleDisabled {
		return models.NewValidationError("status", fmt.Sprintf("unsupported status %q", r.Status))
	}
	s, ok := e.strategies[r.Type]
	if !ok {
		return models.NewValidationError("type", fmt.Sprintf("no strategy for rule type %q", r.Type))
	}
	if err := s.Validate(r.Conditions); err != nil {
		return err
	}
	for i, a := range r.Actions {
		if err := validateAction(a, i); err != nil {
			return err
		}
	}
	return nil
}

func validateAction(a models.Action, i int) error {
	field := fmt.Sprintf("actions[%d]", i)
	if a.Type == "" {
		return models.NewValidationError(field+".type", "action type is required")
	}
	if a.Type != models.ActionGenerateSignal {
		return nil
	}
	if !a.SignalType.Valid() {
		return models.NewValidationError(field+".signal_type", fmt.Sprintf("unsupported signal type %q", a.SignalType))
	}
	if strings.TrimSpace(a.Asset) == "" {
		return models.NewValidationError(field+".asset", "asset is required")
	}
	if err := models.ValidateStrength(a.Strength); err != nil {
		return err
	}
	return models.ValidateConfidence(a.Confidence)
}

func applyPatch(r *models.Rule, p models.RulePatch) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.Type != nil {
		r.Type = *p.Type
	}
	if p.Conditions != nil {
		r.Conditions = p.Conditions
	}
	if p.Actions != nil {
		r.Actions = p.Actions
	}
	if p.Priority != nil {
		r.Priority = *p.Priority
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
}

func ruleLockKey(id string) string { return "rule:" + id }
