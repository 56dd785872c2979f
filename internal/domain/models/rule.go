package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

type RuleType string

const (
	RuleThreshold RuleType = "threshold"
	RuleTrend     RuleType = "trend"
	RuleComposite RuleType = "composite"
	RuleAnomaly   RuleType = "anomaly"
	RulePattern   RuleType = "pattern"
)

var RuleTypes = []RuleType{RuleThreshold, RuleTrend, RuleComposite, RuleAnomaly, RulePattern}

func (t RuleType) Valid() bool {
	for _, v := range RuleTypes {
		if v == t {
			return true
		}
	}
	return false
}

type RuleStatus string

const (
	RuleEnabled  RuleStatus = "enabled"
	RuleDisabled RuleStatus = "disabled"
)

// Operator is the closed set of condition comparisons. Unknown names are
// rejected when a condition is decoded or built, never at evaluation time.
type Operator uint8

const (
	OpInvalid Operator = iota
	OpEquals
	OpNotEquals
	OpGreaterThan
	OpLessThan
	OpGreaterThanOrEqual
	OpLessThanOrEqual
	OpContains
	OpNotContains
	OpCrossAbove
	OpCrossBelow
)

var operatorNames = map[Operator]string{
	OpEquals:             "equals",
	OpNotEquals:          "not_equals",
	OpGreaterThan:        "greater_than",
	OpLessThan:           "less_than",
	OpGreaterThanOrEqual: "greater_than_or_equal",
	OpLessThanOrEqual:    "less_than_or_equal",
	OpContains:           "contains",
	OpNotContains:        "not_contains",
	OpCrossAbove:         "cross_above",
	OpCrossBelow:         "cross_below",
}

var operatorsByName = func() map[string]Operator {
	m := make(map[string]Operator, len(operatorNames))
	for op, name := range operatorNames {
		m[name] = op
	}
	return m
}()

// ParseOperator resolves an operator name.
func ParseOperator(name string) (Operator, error) {
	op, ok := operatorsByName[name]
	if !ok {
		return OpInvalid, NewValidationError("operator", fmt.Sprintf("unsupported operator %q", name))
	}
	return op, nil
}

func (o Operator) String() string {
	if name, ok := operatorNames[o]; ok {
		return name
	}
	return "invalid"
}

func (o Operator) Valid() bool {
	_, ok := operatorNames[o]
	return ok
}

// IsCrossover reports whether the operator needs a time series.
func (o Operator) IsCrossover() bool { return o == OpCrossAbove || o == OpCrossBelow }

func (o Operator) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, NewValidationError("operator", "invalid operator")
	}
	return []byte(o.String()), nil
}

func (o *Operator) UnmarshalText(b []byte) error {
	op, err := ParseOperator(string(b))
	if err != nil {
		return err
	}
	*o = op
	return nil
}

// Condition is a single comparison or, when Conditions is set, a nested
// AND-block used by composite rules.
type Condition struct {
	Parameter  string      `json:"parameter,omitempty" yaml:"parameter,omitempty"`
	Operator   Operator    `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value      any         `json:"value,omitempty" yaml:"value,omitempty"`
	Conditions []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// IsBlock reports whether the condition is a nested sub-block.
func (c Condition) IsBlock() bool { return len(c.Conditions) > 0 }

func (c Condition) MarshalJSON() ([]byte, error) {
	type wire struct {
		Parameter  string      `json:"parameter,omitempty"`
		Operator   string      `json:"operator,omitempty"`
		Value      any         `json:"value,omitempty"`
		Conditions []Condition `json:"conditions,omitempty"`
	}
	w := wire{Parameter: c.Parameter, Value: c.Value, Conditions: c.Conditions}
	if c.Operator.Valid() {
		w.Operator = c.Operator.String()
	}
	return json.Marshal(w)
}

// MarshalYAML keeps operator names readable in rule files.
func (c Condition) MarshalYAML() (any, error) {
	out := map[string]any{}
	if c.Parameter != "" {
		out["parameter"] = c.Parameter
	}
	if c.Operator.Valid() {
		out["operator"] = c.Operator.String()
	}
	if c.Value != nil {
		out["value"] = c.Value
	}
	if len(c.Conditions) > 0 {
		out["conditions"] = c.Conditions
	}
	return out, nil
}

// Action is executed by the pipeline when a rule matches.
type Action struct {
	Type       string     `json:"type" yaml:"type"`
	SignalType SignalType `json:"signal_type,omitempty" yaml:"signal_type,omitempty"`
	Asset      string     `json:"asset,omitempty" yaml:"asset,omitempty"`
	Strength   int        `json:"strength,omitempty" yaml:"strength,omitempty"`
	Confidence float64    `json:"confidence,omitempty" yaml:"confidence,omitempty"`
}

const ActionGenerateSignal = "generate_signal"

// AssetAll in an action resolves to the snapshot asset at execution time.
const AssetAll = "ALL"

type Rule struct {
	RuleID      string      `json:"rule_id" yaml:"rule_id,omitempty"`
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description" yaml:"description"`
	Type        RuleType    `json:"type" yaml:"type"`
	Conditions  []Condition `json:"conditions" yaml:"conditions"`
	Actions     []Action    `json:"actions" yaml:"actions"`
	Priority    int         `json:"priority" yaml:"priority,omitempty"`
	Status      RuleStatus  `json:"status" yaml:"status,omitempty"`
	CreatedAt   time.Time   `json:"created_at" yaml:"created_at,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at" yaml:"updated_at,omitempty"`
}

// DefaultRulePriority is filled in when a decoded rule has no priority key.
// A priority that is present is kept as sent, 0 included, and validated.
const DefaultRulePriority = 5

func (r *Rule) UnmarshalJSON(data []byte) error {
	type plain Rule
	p := plain{Priority: DefaultRulePriority}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = Rule(p)
	return nil
}

func (r *Rule) UnmarshalYAML(node *yaml.Node) error {
	type plain Rule
	p := plain{Priority: DefaultRulePriority}
	if err := node.Decode(&p); err != nil {
		return err
	}
	*r = Rule(p)
	return nil
}

func (r *Rule) Enabled() bool { return r.Status == RuleEnabled }

// Clone copies the rule including its condition tree and actions.
func (r *Rule) Clone() *Rule {
	if r == nil {
		return nil
	}
	c := *r
	c.Conditions = cloneConditions(r.Conditions)
	c.Actions = append([]Action(nil), r.Actions...)
	return &c
}

func cloneConditions(in []Condition) []Condition {
	if in == nil {
		return nil
	}
	out := make([]Condition, len(in))
	for i, c := range in {
		out[i] = c
		out[i].Value = cloneValue(c.Value)
		out[i].Conditions = cloneConditions(c.Conditions)
	}
	return out
}

// RulePatch lists the fields update_rule may change. Nil means untouched.
type RulePatch struct {
	Name        *string     `json:"name,omitempty"`
	Description *string     `json:"description,omitempty"`
	Type        *RuleType   `json:"type,omitempty"`
	Conditions  []Condition `json:"conditions,omitempty"`
	Actions     []Action    `json:"actions,omitempty"`
	Priority    *int        `json:"priority,omitempty"`
	Status      *RuleStatus `json:"status,omitempty"`
}
