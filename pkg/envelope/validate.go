package envelope

import (
	"fmt"
	"sort"
	"time"
)

// recognizedFields are top-level keys that do not trigger an
// "unrecognized field" warning. Beyond the envelope contract itself this
// covers the async-queued acknowledgment and the workflow status payload,
// both of which ride on the envelope's top level.
var recognizedFields = map[string]struct{}{
	FieldSuccess:          {},
	FieldTimestamp:        {},
	FieldExecutionTimeMs:  {},
	FieldError:            {},
	FieldMetadata:         {},
	"state":               {},
	"workflow_id":         {},
	"polling_interval_ms": {},
	"repositories_count":  {},
	"data":                {},
	"results":             {},
	"repositories":        {},
	"overall_progress":    {},
	"status":              {},
	"current_step":        {},
}

// Result is the outcome of validating one envelope.
//
// Errors make the envelope unusable (Valid=false); warnings flag contract
// drift that downstream code tolerates.
type Result struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// Validate checks that a raw backend reply conforms to the minimal
// envelope contract before any field is trusted.
//
// It fails on a missing or non-boolean success field, a missing or
// unparseable RFC3339 timestamp, and a missing, non-numeric, or negative
// execution_time_ms. It warns on unrecognized top-level fields and on
// success=false replies without an error message: the latter is a contract
// violation, but failing it would turn a slightly malformed error reply
// into a secondary failure.
//
// Validate is a pure function over its input.
func Validate(raw map[string]any) Result {
	var res Result
	if raw == nil {
		res.Errors = append(res.Errors, "response is not a JSON object")
		return res
	}

	success, hasSuccess := raw[FieldSuccess]
	successBool, successIsBool := AsBool(success)
	switch {
	case !hasSuccess:
		res.Errors = append(res.Errors, "success: field is required")
	case !successIsBool:
		res.Errors = append(res.Errors, "success: must be a boolean")
	}

	if ts, ok := raw[FieldTimestamp]; !ok {
		res.Errors = append(res.Errors, "timestamp: field is required")
	} else if s, isStr := AsString(ts); !isStr {
		res.Errors = append(res.Errors, "timestamp: must be a string")
	} else if _, err := time.Parse(time.RFC3339, s); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("timestamp: %q is not a valid RFC3339 timestamp", s))
	}

	if ms, ok := raw[FieldExecutionTimeMs]; !ok {
		res.Errors = append(res.Errors, "execution_time_ms: field is required")
	} else if n, isNum := AsNumber(ms); !isNum {
		res.Errors = append(res.Errors, "execution_time_ms: must be a number")
	} else if n < 0 {
		res.Errors = append(res.Errors, "execution_time_ms: must be non-negative")
	}

	if hasSuccess && successIsBool && !successBool {
		if msg, ok := AsString(raw[FieldError]); !ok || msg == "" {
			res.Warnings = append(res.Warnings, "error: missing although success=false")
		}
	}

	// Deterministic warning order for unknown fields.
	var unknown []string
	for key := range raw {
		if _, ok := recognizedFields[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		res.Warnings = append(res.Warnings, fmt.Sprintf("unrecognized field %q", key))
	}

	res.Valid = len(res.Errors) == 0
	return res
}
