package trigger

import (
	"time"

	"github.com/djlord-it/easy-trigger/internal/domain"
)

// IntervalType fires a fixed number of minutes after the previous run.
//
// Spacing is measured in local wall-clock minutes in the configured zone, so
// elapsed real time can differ across a DST boundary (a 60-minute interval
// spanning spring-forward elapses 60 wall minutes, not 60 real minutes).
// That is documented behavior, not a defect.
type IntervalType struct {
	clock clockFunc
}

func newIntervalType(clock clockFunc) *IntervalType {
	return &IntervalType{clock: clock}
}

func (i *IntervalType) Kind() domain.TriggerKind { return domain.KindInterval }
func (i *IntervalType) RequiresSchedule() bool   { return true }
func (i *IntervalType) IsImmediate() bool        { return false }

// NextExecution adds IntervalMinutes to the reference instant: the last
// execution when present, else the configured StartTime, else now.
func (i *IntervalType) NextExecution(cfg domain.TriggerConfig, lastExecutionUTC *time.Time) *time.Time {
	ic, ok := cfg.(domain.IntervalConfig)
	if !ok || ic.IntervalMinutes <= 0 {
		return nil
	}

	loc, _ := resolveLocation(ic.TimeZoneID, FallbackUTC)

	var ref time.Time
	switch {
	case lastExecutionUTC != nil:
		ref = lastExecutionUTC.UTC()
	case ic.StartTime != nil:
		ref = ic.StartTime.UTC()
	default:
		ref = i.clock().UTC()
	}

	next := addWallClockMinutes(ref.In(loc), ic.IntervalMinutes).UTC()
	return &next
}

// Validate requires a positive integer interval and, when present, a
// resolvable timezone. StartTime arrives already parsed on the typed config.
func (i *IntervalType) Validate(cfg domain.TriggerConfig) error {
	if cfg == nil {
		return &domain.ValidationError{
			Field:   "IntervalMinutes",
			Reason:  domain.ReasonConfigurationMissing,
			Message: "configuration is required",
		}
	}
	ic, ok := cfg.(domain.IntervalConfig)
	if !ok {
		return &domain.ValidationError{
			Field:   "config",
			Reason:  domain.ReasonConfigurationMissing,
			Message: "expected interval configuration",
		}
	}
	if ic.IntervalMinutes <= 0 {
		return &domain.ValidationError{
			Field:   "IntervalMinutes",
			Reason:  domain.ReasonOutOfRange,
			Message: "interval must be a positive number of minutes",
		}
	}
	if _, err := resolveLocation(ic.TimeZoneID, FailOnUnknown); err != nil {
		return err
	}
	return nil
}

// addWallClockMinutes advances t by n minutes of local wall-clock time in
// t's location. time.Date normalization keeps the result valid across DST
// gaps and overlaps.
func addWallClockMinutes(t time.Time, n int) time.Time {
	return time.Date(
		t.Year(), t.Month(), t.Day(),
		t.Hour(), t.Minute()+n, t.Second(), t.Nanosecond(),
		t.Location(),
	)
}
