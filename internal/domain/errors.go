package domain

import (
	"errors"
	"fmt"
)

// ValidationReason classifies why a trigger or schedule failed validation.
// Reasons are stable identifiers; callers branch on them, not on messages.
type ValidationReason string

const (
	// ReasonConfigurationMissing: a required key is absent, or the
	// configuration payload itself is absent.
	ReasonConfigurationMissing ValidationReason = "configuration_missing"

	// ReasonMalformedExpression: cron syntax fails to parse.
	ReasonMalformedExpression ValidationReason = "malformed_expression"

	// ReasonUnknownTimezone: the timezone id does not resolve.
	ReasonUnknownTimezone ValidationReason = "unknown_timezone"

	// ReasonOutOfRange: a numeric or datetime parameter is invalid
	// (e.g., interval <= 0, unparseable StartTime).
	ReasonOutOfRange ValidationReason = "out_of_range"

	// ReasonNeverFires: a syntactically valid cron expression with no
	// future occurrence.
	ReasonNeverFires ValidationReason = "never_fires"

	// ReasonStaleIdentity: structural invariant violation (empty id/name/kind,
	// or modified < created).
	ReasonStaleIdentity ValidationReason = "stale_identity"

	// ReasonUnknownTriggerType: the kind tag does not resolve to a registered
	// trigger type. Deployment-level fault, not user input.
	ReasonUnknownTriggerType ValidationReason = "unknown_trigger_type"
)

// ValidationError is a typed validation failure.
type ValidationError struct {
	Field   string
	Reason  ValidationReason
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Field, e.Reason, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// ReasonOf extracts the ValidationReason from err, or "" if err carries none.
func ReasonOf(err error) ValidationReason {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	var ves ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		return ves[0].Reason
	}
	return ""
}

func newValidationError(field string, reason ValidationReason, format string, args ...any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Reason:  reason,
		Message: fmt.Sprintf(format, args...),
	}
}
