// Package envelope defines the standard response envelope returned by the
// pattern-discovery backend and the ingress boundary around it.
//
// Every backend reply is wrapped in the same envelope:
//
//	{
//	  "success": true,
//	  "timestamp": "2026-01-19T12:00:00Z",
//	  "execution_time_ms": 42,
//	  "error": "...",      // present only when success=false
//	  "metadata": { ... }  // free-form extension bag
//	}
//
// Raw replies are decoded into map[string]any, validated once with Validate,
// and only then converted to the typed Response. Downstream code operates on
// the typed model; nothing outside this package probes raw maps for the
// envelope contract.
package envelope

import (
	"encoding/json"
	"fmt"
	"time"
)

// Field keys of the standard response contract.
const (
	FieldSuccess         = "success"
	FieldTimestamp       = "timestamp"
	FieldExecutionTimeMs = "execution_time_ms"
	FieldError           = "error"
	FieldMetadata        = "metadata"
)

// StateAsyncQueued marks a submission acknowledgment for a job that was
// queued for asynchronous processing instead of answered inline.
const StateAsyncQueued = "async_queued"

// Response is the typed view of a validated backend reply.
//
// Fields are populated defensively: a malformed field degrades to its zero
// value rather than failing, because Response is only built after Validate
// has reported contract violations.
type Response struct {
	// Success is the backend-reported operation outcome.
	Success bool

	// Timestamp is when the backend started processing.
	Timestamp time.Time

	// ExecutionTimeMs is the server-side processing duration.
	ExecutionTimeMs int64

	// Error is the backend-reported failure message. Populated only when
	// Success is false.
	Error string

	// Metadata is the free-form extension bag. Nil when absent.
	Metadata map[string]any

	raw map[string]any
}

// Decode parses raw JSON into the untyped envelope map.
//
// The reply must be a JSON object; anything else is a decode error. Field
// validation is a separate step (Validate).
func Decode(data []byte) (map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode response envelope: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("decode response envelope: body is null")
	}
	return raw, nil
}

// FromRaw builds the typed Response from an untyped envelope map.
//
// FromRaw never fails; callers are expected to have run Validate first and
// acted on its result.
func FromRaw(raw map[string]any) *Response {
	r := &Response{raw: raw}
	if raw == nil {
		return r
	}
	r.Success, _ = AsBool(raw[FieldSuccess])
	if ts, ok := AsString(raw[FieldTimestamp]); ok {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			r.Timestamp = parsed
		}
	}
	if ms, ok := AsNumber(raw[FieldExecutionTimeMs]); ok && ms >= 0 {
		r.ExecutionTimeMs = int64(ms)
	}
	r.Error, _ = AsString(raw[FieldError])
	if meta, ok := AsMap(raw[FieldMetadata]); ok {
		r.Metadata = meta
	}
	return r
}

// Raw returns the untyped envelope map the Response was built from.
func (r *Response) Raw() map[string]any {
	return r.raw
}

// Field reads a top-level field from the raw envelope.
func (r *Response) Field(name string) (any, bool) {
	if r.raw == nil {
		return nil, false
	}
	v, ok := r.raw[name]
	return v, ok
}

// State returns the top-level "state" field, or "" when absent.
//
// The submission endpoint uses state=async_queued to signal that the job
// was queued and must be tracked by polling.
func (r *Response) State() string {
	v, _ := r.Field("state")
	s, _ := AsString(v)
	return s
}
