// Package trigger implements the trigger evaluation engine: the family of
// trigger types (cron, interval, once, manual) that compute next-execution
// instants and validate trigger configuration.
//
// Types are stateless given their inputs and an injected clock; a single
// instance of each is shared through a Registry and is safe for concurrent
// use from any number of goroutines.
package trigger

import (
	"time"

	"github.com/djlord-it/easy-trigger/internal/domain"
)

// Type is the behavior object for one trigger kind.
type Type interface {
	// Kind returns the tag this type registers under.
	Kind() domain.TriggerKind

	// RequiresSchedule reports whether the kind needs next-execution
	// tracking by the scheduler loop. Manual triggers do not.
	RequiresSchedule() bool

	// IsImmediate reports whether the kind fires at creation time, before
	// any occurrence calculation. None of the built-in kinds do; the flag
	// exists for extension kinds and is honored by the scheduler loop.
	IsImmediate() bool

	// NextExecution computes the next UTC instant the trigger should fire,
	// strictly derived from the config, the optional last execution and the
	// clock. It never returns an error: a config that cannot produce an
	// occurrence (malformed, exhausted, manual) yields nil.
	NextExecution(cfg domain.TriggerConfig, lastExecutionUTC *time.Time) *time.Time

	// Validate checks that the config is complete, well-typed and
	// semantically sane. Failures carry a domain.ValidationReason.
	Validate(cfg domain.TriggerConfig) error
}

// clockFunc supplies "now"; injected for deterministic tests.
type clockFunc func() time.Time

func defaultClock() time.Time { return time.Now().UTC() }
