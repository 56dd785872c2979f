package rules

import (
	"reflect"
	"strings"

	"SignalEngine/pkg/util"
)

var toFloat = util.ToFloat

// lookup resolves a dot-separated path in a nested snapshot. A missing
// segment is reported as not found, never as an error.
func lookup(snapshot map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var cur any = snapshot
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		v, ok := m[part]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, cur != nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string]float64:
		out := make(map[string]any, len(m))
		for k, x := range m {
			out[k] = x
		}
		return out, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, x := range m {
			out[k] = x
		}
		return out, true
	}
	return nil, false
}

// resolveOperand dereferences a dotted string value against the snapshot so
// conditions can compare two snapshot fields. Other values pass through.
func resolveOperand(snapshot map[string]any, value any) any {
	s, ok := value.(string)
	if !ok || !strings.Contains(s, ".") {
		return value
	}
	if v, found := lookup(snapshot, s); found {
		return v
	}
	return value
}

// toSeries converts a numeric sequence of any common element type.
func toSeries(v any) ([]float64, bool) {
	switch s := v.(type) {
	case []float64:
		return s, true
	case []int:
		out := make([]float64, len(s))
		for i, x := range s {
			out[i] = float64(x)
		}
		return out, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	out := make([]float64, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		f, ok := toFloat(rv.Index(i).Interface())
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}
