package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEnvelope() map[string]any {
	return map[string]any{
		"success":           true,
		"timestamp":         "2026-01-19T12:00:00Z",
		"execution_time_ms": float64(42),
	}
}

func TestValidate_ValidEnvelope(t *testing.T) {
	res := Validate(validEnvelope())

	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)
}

func TestValidate_FieldErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(map[string]any)
		wantErr string
	}{
		{
			name:    "missing success",
			mutate:  func(m map[string]any) { delete(m, "success") },
			wantErr: "success: field is required",
		},
		{
			name:    "non-boolean success",
			mutate:  func(m map[string]any) { m["success"] = "yes" },
			wantErr: "success: must be a boolean",
		},
		{
			name:    "missing timestamp",
			mutate:  func(m map[string]any) { delete(m, "timestamp") },
			wantErr: "timestamp: field is required",
		},
		{
			name:    "non-string timestamp",
			mutate:  func(m map[string]any) { m["timestamp"] = float64(1700000000) },
			wantErr: "timestamp: must be a string",
		},
		{
			name:    "unparseable timestamp",
			mutate:  func(m map[string]any) { m["timestamp"] = "yesterday" },
			wantErr: `timestamp: "yesterday" is not a valid RFC3339 timestamp`,
		},
		{
			name:    "missing execution_time_ms",
			mutate:  func(m map[string]any) { delete(m, "execution_time_ms") },
			wantErr: "execution_time_ms: field is required",
		},
		{
			name:    "non-numeric execution_time_ms",
			mutate:  func(m map[string]any) { m["execution_time_ms"] = "fast" },
			wantErr: "execution_time_ms: must be a number",
		},
		{
			name:    "negative execution_time_ms",
			mutate:  func(m map[string]any) { m["execution_time_ms"] = float64(-1) },
			wantErr: "execution_time_ms: must be non-negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validEnvelope()
			tt.mutate(raw)

			res := Validate(raw)

			assert.False(t, res.Valid)
			assert.Contains(t, res.Errors, tt.wantErr)
		})
	}
}

func TestValidate_NilInput(t *testing.T) {
	res := Validate(nil)

	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "response is not a JSON object", res.Errors[0])
}

func TestValidate_WarnsOnUnrecognizedFields(t *testing.T) {
	raw := validEnvelope()
	raw["zebra"] = 1
	raw["aardvark"] = 2

	res := Validate(raw)

	assert.True(t, res.Valid)
	assert.Equal(t, []string{
		`unrecognized field "aardvark"`,
		`unrecognized field "zebra"`,
	}, res.Warnings)
}

func TestValidate_RecognizesAsyncAndPayloadFields(t *testing.T) {
	raw := validEnvelope()
	raw["state"] = "async_queued"
	raw["workflow_id"] = "wf-1"
	raw["polling_interval_ms"] = float64(5000)
	raw["repositories_count"] = float64(3)
	raw["results"] = []any{}
	raw["overall_progress"] = float64(0)

	res := Validate(raw)

	assert.True(t, res.Valid)
	assert.Empty(t, res.Warnings)
}

func TestValidate_WarnsOnFailureWithoutError(t *testing.T) {
	raw := validEnvelope()
	raw["success"] = false

	res := Validate(raw)

	assert.True(t, res.Valid, "a malformed error reply must not become fatal")
	assert.Contains(t, res.Warnings, "error: missing although success=false")
}

func TestValidate_FailureWithErrorDoesNotWarn(t *testing.T) {
	raw := validEnvelope()
	raw["success"] = false
	raw["error"] = "boom"

	res := Validate(raw)

	assert.True(t, res.Valid)
	assert.Empty(t, res.Warnings)
}

func TestValidate_Pure(t *testing.T) {
	raw := validEnvelope()
	raw["extra"] = "x"

	first := Validate(raw)
	second := Validate(raw)

	assert.Equal(t, first, second)
}
