package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProcessDescriptor identifies what a schedule runs. The descriptor is
// opaque to the scheduling core: the type tag and configuration are supplied
// by and interpreted by the execution subsystem (see internal/dispatcher).
type ProcessDescriptor struct {
	Type   string
	Config map[string]any
}

// Validate checks structural completeness of the descriptor.
func (p ProcessDescriptor) Validate() error {
	if p.Type == "" {
		return newValidationError("process.type", ReasonStaleIdentity, "process type is required")
	}
	if p.Config == nil {
		return newValidationError("process.config", ReasonConfigurationMissing, "process configuration is required")
	}
	return nil
}

// Schedule binds a trigger to a process descriptor and carries the runtime
// state the scheduler loop tracks: the active flag and the cached
// next-execution instant (always UTC when present). Identity equality is
// by ID.
//
// A Schedule is not safe for concurrent mutation; UpdateActiveStatus and
// UpdateNextExecution are expected to be called only by the owning
// scheduler loop.
type Schedule struct {
	ID      uuid.UUID
	Trigger *Trigger
	Process ProcessDescriptor

	Active           bool
	NextExecutionUTC *time.Time

	Description string
	Metadata    map[string]string
	Analytics   AnalyticsConfig

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSchedule registers a process for scheduling under the given trigger.
func NewSchedule(trigger *Trigger, process ProcessDescriptor) (*Schedule, error) {
	if err := trigger.CheckIdentity(); err != nil {
		return nil, err
	}
	if err := process.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Schedule{
		ID:        uuid.New(),
		Trigger:   trigger,
		Process:   process,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Validate checks structural completeness: a present, identity-valid trigger,
// a usable process descriptor and updated >= created. Kind-specific trigger
// validation is delegated to the trigger engine (trigger.Evaluator).
func (s *Schedule) Validate() error {
	if s == nil {
		return newValidationError("schedule", ReasonStaleIdentity, "schedule is nil")
	}
	if s.ID == uuid.Nil {
		return newValidationError("id", ReasonStaleIdentity, "id is required")
	}
	if s.Trigger == nil {
		return newValidationError("trigger", ReasonStaleIdentity, "trigger is required")
	}
	if err := s.Trigger.CheckIdentity(); err != nil {
		return err
	}
	if err := s.Process.Validate(); err != nil {
		return err
	}
	if s.UpdatedAt.Before(s.CreatedAt) {
		return newValidationError("updated_at", ReasonStaleIdentity, "updated before created")
	}
	return nil
}

// UpdateActiveStatus toggles the schedule and bumps the updated timestamp.
func (s *Schedule) UpdateActiveStatus(active bool) {
	s.Active = active
	s.touch()
}

// UpdateNextExecution replaces the cached next-execution instant (normalized
// to UTC; nil means the trigger will not fire again) and bumps the updated
// timestamp.
func (s *Schedule) UpdateNextExecution(next *time.Time) {
	if next != nil {
		u := next.UTC()
		next = &u
	}
	s.NextExecutionUTC = next
	s.touch()
}

// Equal reports identity equality (by ID).
func (s *Schedule) Equal(other *Schedule) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.ID == other.ID
}

func (s *Schedule) touch() {
	s.UpdatedAt = time.Now().UTC()
}
