package trigger

import (
	"time"

	"github.com/djlord-it/easy-trigger/internal/domain"
)

// OnceType fires exactly one time at a configured instant.
//
// Policy: a StartTime already in the past fires on first evaluation ("now")
// rather than never, so a schedule created or resumed after its start still
// runs once. A recorded execution makes every later calculation return nil.
type OnceType struct {
	clock clockFunc
}

func newOnceType(clock clockFunc) *OnceType {
	return &OnceType{clock: clock}
}

func (o *OnceType) Kind() domain.TriggerKind { return domain.KindOnce }
func (o *OnceType) RequiresSchedule() bool   { return true }
func (o *OnceType) IsImmediate() bool        { return false }

// NextExecution enforces at-most-once semantics: any non-nil last execution
// is terminal.
func (o *OnceType) NextExecution(cfg domain.TriggerConfig, lastExecutionUTC *time.Time) *time.Time {
	if lastExecutionUTC != nil {
		return nil
	}
	oc, ok := cfg.(domain.OnceConfig)
	if !ok || oc.StartTime.IsZero() {
		return nil
	}

	now := o.clock().UTC()
	start := oc.StartTime.UTC()
	if !start.After(now) {
		return &now
	}
	return &start
}

// Validate requires a UTC-tagged StartTime.
func (o *OnceType) Validate(cfg domain.TriggerConfig) error {
	if cfg == nil {
		return &domain.ValidationError{
			Field:   "StartTime",
			Reason:  domain.ReasonConfigurationMissing,
			Message: "configuration is required",
		}
	}
	oc, ok := cfg.(domain.OnceConfig)
	if !ok {
		return &domain.ValidationError{
			Field:   "config",
			Reason:  domain.ReasonConfigurationMissing,
			Message: "expected once configuration",
		}
	}
	if oc.StartTime.IsZero() {
		return &domain.ValidationError{
			Field:   "StartTime",
			Reason:  domain.ReasonConfigurationMissing,
			Message: "required key is absent",
		}
	}
	if oc.StartTime.Location() != time.UTC {
		return &domain.ValidationError{
			Field:   "StartTime",
			Reason:  domain.ReasonOutOfRange,
			Message: "start time must be UTC",
		}
	}
	if _, err := resolveLocation(oc.TimeZoneID, FailOnUnknown); err != nil {
		return err
	}
	return nil
}
