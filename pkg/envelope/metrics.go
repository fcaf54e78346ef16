package envelope

import "time"

// ExecutionMetrics captures the timing and outcome of one backend call.
type ExecutionMetrics struct {
	// ExecutionTimeMs is the server-reported processing duration.
	ExecutionTimeMs int64 `json:"execution_time_ms"`

	// Success is the backend-reported outcome.
	Success bool `json:"success"`

	// Timestamp is when the backend started processing.
	Timestamp time.Time `json:"timestamp"`

	// Error is the backend-reported failure message, if any.
	Error string `json:"error,omitempty"`
}

// ExtractMetrics pulls execution metrics out of a raw envelope.
//
// ExtractMetrics must not fail: it runs inside already-successful response
// handling paths and must never become a secondary failure source. Missing
// or invalid fields degrade to safe defaults (0ms, success=false, current
// time) instead.
func ExtractMetrics(raw map[string]any) ExecutionMetrics {
	m := ExecutionMetrics{Timestamp: time.Now().UTC()}
	if raw == nil {
		return m
	}
	if ms, ok := AsNumber(raw[FieldExecutionTimeMs]); ok && ms >= 0 {
		m.ExecutionTimeMs = int64(ms)
	}
	if ok, isBool := AsBool(raw[FieldSuccess]); isBool {
		m.Success = ok
	}
	if ts, ok := AsString(raw[FieldTimestamp]); ok {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			m.Timestamp = parsed
		}
	}
	m.Error, _ = AsString(raw[FieldError])
	return m
}
