package trigger

import (
	"time"

	"github.com/djlord-it/easy-trigger/internal/domain"
)

// Evaluator binds the registry to the Trigger/Schedule data model. It is the
// surface the scheduler loop and the API consume; each call resolves the
// kind tag once and delegates to the behavior object.
type Evaluator struct {
	registry *Registry
}

func NewEvaluator(registry *Registry) *Evaluator {
	return &Evaluator{registry: registry}
}

// Resolve exposes kind resolution for callers that need capability flags.
func (e *Evaluator) Resolve(kind domain.TriggerKind) (Type, error) {
	return e.registry.Resolve(kind)
}

// NextExecution computes the trigger's next UTC fire instant, or nil when it
// will not fire again. The only error condition is an unregistered kind.
func (e *Evaluator) NextExecution(t *domain.Trigger, lastExecutionUTC *time.Time) (*time.Time, error) {
	typ, err := e.registry.Resolve(t.Kind)
	if err != nil {
		return nil, err
	}
	return typ.NextExecution(t.Config, lastExecutionUTC), nil
}

// ValidateTrigger checks structural identity first, then delegates the
// kind-specific configuration checks. Idempotent on an unmodified trigger.
func (e *Evaluator) ValidateTrigger(t *domain.Trigger) error {
	if err := t.CheckIdentity(); err != nil {
		return err
	}
	typ, err := e.registry.Resolve(t.Kind)
	if err != nil {
		return &domain.ValidationError{
			Field:   "kind",
			Reason:  domain.ReasonUnknownTriggerType,
			Message: err.Error(),
		}
	}
	return typ.Validate(t.Config)
}

// ValidateSchedule checks the schedule's structural completeness then the
// bound trigger's configuration.
func (e *Evaluator) ValidateSchedule(s *domain.Schedule) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return e.ValidateTrigger(s.Trigger)
}
