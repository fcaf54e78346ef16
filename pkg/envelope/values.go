package envelope

import "encoding/json"

// Coercion helpers for reading decoded JSON values defensively.
//
// encoding/json decodes numbers as float64 and objects as map[string]any,
// but replies that passed through intermediate layers may carry other
// numeric types. These helpers accept the common shapes and report
// (zero, false) for everything else.

// AsString returns v as a string.
func AsString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// AsBool returns v as a bool.
func AsBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

// AsNumber returns v as a float64.
func AsNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// AsInt returns v as an int, truncating any fractional part.
func AsInt(v any) (int, bool) {
	f, ok := AsNumber(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// AsMap returns v as a JSON object.
func AsMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// AsSlice returns v as a JSON array.
func AsSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}
