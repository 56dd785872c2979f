package rules

import (
	"fmt"

	"SignalEngine/internal/domain/models"
)

// Strategy validates and matches one rule kind. The engine picks the strategy
// from the rule type when the rule is written and reuses it at evaluation.
type Strategy interface {
	Kind() models.RuleType
	Validate(conditions []models.Condition) error
	Match(conditions []models.Condition, snapshot map[string]any) bool
}

// flatStrategy covers the kinds whose conditions are a flat AND-list.
type flatStrategy struct {
	kind models.RuleType
}

func (s flatStrategy) Kind() models.RuleType { return s.kind }

func (s flatStrategy) Validate(conditions []models.Condition) error {
	for i, c := range conditions {
		if c.IsBlock() {
			return models.NewValidationError(fmt.Sprintf("conditions[%d]", i),
				fmt.Sprintf("nested condition blocks are only allowed in %s rules", models.RuleComposite))
		}
		if err := validateLeaf(c, i); err != nil {
			return err
		}
	}
	return nil
}

func (s flatStrategy) Match(conditions []models.Condition, snapshot map[string]any) bool {
	for _, c := range conditions {
		if !matchLeaf(c, snapshot) {
			return false
		}
	}
	return true
}

// compositeStrategy allows nested AND-blocks evaluated recursively.
type compositeStrategy struct{}

func (compositeStrategy) Kind() models.RuleType { return models.RuleComposite }

func (s compositeStrategy) Validate(conditions []models.Condition) error {
	for i, c := range conditions {
		if c.IsBlock() {
			if err := s.Validate(c.Conditions); err != nil {
				return err
			}
			continue
		}
		if err := validateLeaf(c, i); err != nil {
			return err
		}
	}
	return nil
}

func (s compositeStrategy) Match(conditions []models.Condition, snapshot map[string]any) bool {
	for _, c := range conditions {
		if c.IsBlock() {
			if !s.Match(c.Conditions, snapshot) {
				return false
			}
			continue
		}
		if !matchLeaf(c, snapshot) {
			return false
		}
	}
	return true
}

func validateLeaf(c models.Condition, i int) error {
	field := fmt.Sprintf("conditions[%d]", i)
	if c.Parameter == "" {
		return models.NewValidationError(field+".parameter", "parameter is required")
	}
	if !c.Operator.Valid() {
		return models.NewValidationError(field+".operator", "operator is missing or unsupported")
	}
	if c.Value == nil {
		return models.NewValidationError(field+".value", "value is required")
	}
	return nil
}

func matchLeaf(c models.Condition, snapshot map[string]any) bool {
	param, ok := lookup(snapshot, c.Parameter)
	if !ok {
		return false
	}
	return evaluateCondition(c.Operator, param, resolveOperand(snapshot, c.Value))
}

// DefaultStrategies returns one strategy per supported rule kind.
func DefaultStrategies() map[models.RuleType]Strategy {
	return map[models.RuleType]Strategy{
		models.RuleThreshold: flatStrategy{kind: models.RuleThreshold},
		models.RuleTrend:     flatStrategy{kind: models.RuleTrend},
		models.RuleAnomaly:   flatStrategy{kind: models.RuleAnomaly},
		models.RulePattern:   flatStrategy{kind: models.RulePattern},
		models.RuleComposite: compositeStrategy{},
	}
}
