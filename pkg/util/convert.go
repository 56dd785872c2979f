package util

// ToFloat converts any Go numeric value to float64. Decoded JSON numbers
// arrive as float64, YAML integers as int, so both need to compare equal.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// FloatDefault returns v as float64, or def when v is absent or not numeric.
func FloatDefault(v any, def float64) float64 {
	if f, ok := ToFloat(v); ok {
		return f
	}
	return def
}

// StringDefault returns v as a string, or def when v is absent or not a string.
func StringDefault(v any, def string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

// MapValue returns v as a nested JSON object, or nil.
func MapValue(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
