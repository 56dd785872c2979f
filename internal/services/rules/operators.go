package rules

import (
	"reflect"
	"strings"

	"SignalEngine/internal/domain/models"
)

// evaluateCondition applies op to the resolved parameter and operand.
// Type mismatches evaluate to false.
func evaluateCondition(op models.Operator, param, value any) bool {
	switch op {
	case models.OpEquals:
		return equal(param, value)
	case models.OpNotEquals:
		return !equal(param, value)
	case models.OpGreaterThan:
		c, ok := compare(param, value)
		return ok && c > 0
	case models.OpLessThan:
		c, ok := compare(param, value)
		return ok && c < 0
	case models.OpGreaterThanOrEqual:
		c, ok := compare(param, value)
		return ok && c >= 0
	case models.OpLessThanOrEqual:
		c, ok := compare(param, value)
		return ok && c <= 0
	case models.OpContains:
		in, ok := contains(param, value)
		return ok && in
	case models.OpNotContains:
		in, ok := contains(param, value)
		return ok && !in
	case models.OpCrossAbove:
		return cross(param, value, true)
	case models.OpCrossBelow:
		return cross(param, value, false)
	}
	return false
}

func equal(a, b any) bool {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

// compare orders numbers numerically and strings lexically.
func compare(a, b any) (int, bool) {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		switch {
		case fa > fb:
			return 1, true
		case fa < fb:
			return -1, true
		}
		return 0, true
	}
	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

// contains tests membership of value in container. The second result is
// false when container is not a string, sequence or map.
func contains(container, value any) (bool, bool) {
	switch c := container.(type) {
	case string:
		s, ok := value.(string)
		if !ok {
			return false, false
		}
		return strings.Contains(c, s), true
	case map[string]any:
		k, ok := value.(string)
		if !ok {
			return false, true
		}
		_, found := c[k]
		return found, true
	}
	rv := reflect.ValueOf(container)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return false, false
	}
	for i := 0; i < rv.Len(); i++ {
		if equal(rv.Index(i).Interface(), value) {
			return true, true
		}
	}
	return false, true
}

// cross reports whether the latest sample of series crossed the threshold.
// A series threshold is compared pairwise on the last two samples.
func cross(param, threshold any, above bool) bool {
	series, ok := toSeries(param)
	if !ok || len(series) < 2 {
		return false
	}
	last, prev := series[len(series)-1], series[len(series)-2]

	var tLast, tPrev float64
	if ts, ok := toSeries(threshold); ok {
		if len(ts) < 2 {
			return false
		}
		tLast, tPrev = ts[len(ts)-1], ts[len(ts)-2]
	} else if f, ok := toFloat(threshold); ok {
		tLast, tPrev = f, f
	} else {
		return false
	}

	if above {
		return last > tLast && prev <= tPrev
	}
	return last < tLast && prev >= tPrev
}
