package manifest

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrValidationFailed indicates the manifest failed validation.
var ErrValidationFailed = errors.New("manifest validation failed")

// ValidationError represents a single validation issue.
type ValidationError struct {
	// Path points to the problematic field (e.g., "backend.base_url").
	Path string

	// Message describes the validation failure.
	Message string
}

// Error implements error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var b strings.Builder
	b.WriteString("manifest validation failed with ")
	b.WriteString(fmt.Sprintf("%d errors:\n", len(e)))
	for i, err := range e {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error type.
func (e ValidationErrors) Unwrap() error {
	return ErrValidationFailed
}

// Validate checks the manifest for structural problems.
//
// Returns nil if validation succeeds, or a ValidationErrors with details
// about all validation failures.
func Validate(m *Manifest) error {
	var errs ValidationErrors

	if strings.TrimSpace(m.Backend.BaseURL) == "" {
		errs = append(errs, ValidationError{Path: "backend.base_url", Message: "is required"})
	} else if u, err := url.Parse(m.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, ValidationError{Path: "backend.base_url", Message: "must be an absolute URL"})
	}
	if m.Backend.TimeoutSeconds < 0 {
		errs = append(errs, ValidationError{Path: "backend.timeout_seconds", Message: "must not be negative"})
	}
	if m.Backend.RateLimit < 0 {
		errs = append(errs, ValidationError{Path: "backend.rate_limit", Message: "must not be negative"})
	}

	if len(m.Repositories) == 0 {
		errs = append(errs, ValidationError{Path: "repositories", Message: "at least one repository is required"})
	}
	for i, repo := range m.Repositories {
		if strings.TrimSpace(repo) == "" {
			errs = append(errs, ValidationError{Path: fmt.Sprintf("repositories[%d]", i), Message: "must not be empty"})
		}
	}

	if m.Phases != nil &&
		m.Phases.PatternExtraction != nil && !*m.Phases.PatternExtraction &&
		m.Phases.DependencyDiscovery != nil && !*m.Phases.DependencyDiscovery {
		errs = append(errs, ValidationError{Path: "phases", Message: "at least one phase must be enabled"})
	}

	if m.Poll != nil {
		if m.Poll.IntervalMs < 0 {
			errs = append(errs, ValidationError{Path: "poll.interval_ms", Message: "must not be negative"})
		}
		if m.Poll.MaxPolls < 0 {
			errs = append(errs, ValidationError{Path: "poll.max_polls", Message: "must not be negative"})
		}
		if m.Poll.MaxDurationSeconds < 0 {
			errs = append(errs, ValidationError{Path: "poll.max_duration_seconds", Message: "must not be negative"})
		}
	}

	if m.Archive != nil {
		if strings.TrimSpace(m.Archive.Destination) == "" {
			errs = append(errs, ValidationError{Path: "archive.destination", Message: "is required when archive is configured"})
		} else if !strings.HasPrefix(m.Archive.Destination, "s3://") {
			errs = append(errs, ValidationError{Path: "archive.destination", Message: "must be an s3:// URL"})
		}
		hasKey := m.Archive.AccessKeyID != ""
		hasSecret := m.Archive.SecretAccessKey != ""
		if hasKey != hasSecret {
			errs = append(errs, ValidationError{Path: "archive", Message: "access_key_id and secret_access_key must be set together"})
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
