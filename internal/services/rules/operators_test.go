package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"SignalEngine/internal/domain/models"
)

func TestEvaluateCondition_Comparisons(t *testing.T) {
	tests := []struct {
		name  string
		op    models.Operator
		param any
		value any
		want  bool
	}{
		{"equals mixed numeric", models.OpEquals, 3, 3.0, true},
		{"equals strings", models.OpEquals, "high", "high", true},
		{"not equals", models.OpNotEquals, "low", "high", true},
		{"greater", models.OpGreaterThan, 0.06, 0.05, true},
		{"greater type mismatch", models.OpGreaterThan, "0.06", 0.05, false},
		{"less", models.OpLessThan, -0.4, -0.3, true},
		{"gte boundary", models.OpGreaterThanOrEqual, 5, 5, true},
		{"lte boundary", models.OpLessThanOrEqual, int64(5), 5.0, true},
		{"string ordering", models.OpGreaterThan, "b", "a", true},
		{"contains substring", models.OpContains, "bullish breakout", "breakout", true},
		{"contains slice", models.OpContains, []any{"a", 2.0}, 2, true},
		{"contains map key", models.OpContains, map[string]any{"rsi": 1}, "rsi", true},
		{"not contains", models.OpNotContains, []string{"a"}, "b", true},
		{"not contains unsupported", models.OpNotContains, 42, "b", false},
		{"invalid operator", models.OpInvalid, 1, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, evaluateCondition(tt.op, tt.param, tt.value))
		})
	}
}

// The latest sample must be past the threshold and the one before it must not.
func TestCrossAbove_LastTwoSamples(t *testing.T) {
	const threshold = 100.0
	cases := []struct {
		series []float64
		want   bool
	}{
		{[]float64{99, 101}, true},
		{[]float64{100, 101}, true},
		{[]float64{101, 102}, false},
		{[]float64{99, 100}, false},
		{[]float64{102, 99}, false},
		{[]float64{50, 101, 99, 101}, true},
		{[]float64{101}, false},
		{nil, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, cross(c.series, threshold, true), "%v", c.series)
	}
}

func TestCrossBelow_Mirror(t *testing.T) {
	assert.True(t, cross([]any{101.0, 99.0}, 100, false))
	assert.True(t, cross([]int{100, 99}, 100, false))
	assert.False(t, cross([]float64{99, 98}, 100, false))
	assert.False(t, cross(99.0, 100, false))
}

func TestCross_SeriesThreshold(t *testing.T) {
	fast := []float64{9, 11}
	slow := []float64{10, 10.5}
	assert.True(t, cross(fast, slow, true))
	assert.False(t, cross(fast, []float64{10}, true))
}

func TestLookupAndOperandResolution(t *testing.T) {
	snap := map[string]any{
		"price": map[string]any{"current": 100.0, "levels": map[string]float64{"support": 95}},
		"label": "a.b",
	}
	v, ok := lookup(snap, "price.levels.support")
	assert.True(t, ok)
	assert.Equal(t, 95.0, v)

	_, ok = lookup(snap, "price.current.deeper")
	assert.False(t, ok)

	assert.Equal(t, 100.0, resolveOperand(snap, "price.current"))
	assert.Equal(t, "not.a.path", resolveOperand(snap, "not.a.path"))
	assert.Equal(t, 7, resolveOperand(snap, 7))
}
