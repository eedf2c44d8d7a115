package metrics

import (
	"time"

	"github.com/djlord-it/easy-trigger/internal/domain"
)

// Sink aggregates the metrics surfaces of every component. All methods are
// fire-and-forget: implementations MUST NOT block or propagate errors. If the
// metrics backend is unavailable, implementations log warnings and continue.
//
// Components declare their own narrow consumer interfaces (scheduler.MetricsSink,
// dispatcher.MetricsSink, ...); Sink is their union, satisfied by
// PrometheusSink and NoopSink and handed out in main.
type Sink interface {
	// Scheduler metrics
	TickStarted()
	TickCompleted(duration time.Duration, fired int, err error)
	ScheduleFired(kind domain.TriggerKind)
	EvaluationFailed(kind domain.TriggerKind)

	// Dispatcher metrics
	DeliveryAttemptCompleted(attempt int, statusClass string, duration time.Duration)
	DeliveryOutcome(outcome string)
	RetryAttempt(retryable bool)
	EventsInFlightIncr()
	EventsInFlightDecr()

	// EventBus metrics
	BufferSizeUpdate(size int)
	BufferCapacitySet(capacity int)
	BufferSaturationUpdate(saturation float64)
	EmitError()

	// Reconciler metrics
	OrphanedExecutionsUpdate(count int)

	// API metrics
	ValidationFailed(reason string)
}

// Outcome constants for DeliveryOutcome metric.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// StatusClass constants for DeliveryAttemptCompleted metric.
const (
	StatusClass2xx             = "2xx"
	StatusClass4xx             = "4xx"
	StatusClass5xx             = "5xx"
	StatusClassTimeout         = "timeout"
	StatusClassConnectionError = "connection_error"
	StatusClassOtherError      = "other_error"
)
