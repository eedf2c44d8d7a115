package trigger

import (
	"time"

	"github.com/djlord-it/easy-trigger/internal/domain"
)

// ManualType never auto-schedules. Fires only through an explicit external
// invocation (the API's fire endpoint), outside the calculation path.
type ManualType struct{}

func newManualType() *ManualType { return &ManualType{} }

func (m *ManualType) Kind() domain.TriggerKind { return domain.KindManual }
func (m *ManualType) RequiresSchedule() bool   { return false }
func (m *ManualType) IsImmediate() bool        { return false }

// NextExecution always returns nil, for all inputs.
func (m *ManualType) NextExecution(domain.TriggerConfig, *time.Time) *time.Time {
	return nil
}

// Validate is permissive: every field is optional and arrives well-typed on
// the typed config (type errors are caught when decoding the key/value
// payload). A wrong payload kind is still rejected.
func (m *ManualType) Validate(cfg domain.TriggerConfig) error {
	if cfg == nil {
		return nil
	}
	if _, ok := cfg.(domain.ManualConfig); !ok {
		return &domain.ValidationError{
			Field:   "config",
			Reason:  domain.ReasonConfigurationMissing,
			Message: "expected manual configuration",
		}
	}
	return nil
}
