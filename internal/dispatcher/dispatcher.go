// Package dispatcher executes the processes behind fire events. The
// scheduling core treats a schedule's process descriptor as opaque; this
// package interprets it. The webhook process type delivers a signed HTTP
// POST with bounded retries.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/easy-trigger/internal/domain"
)

var defaultBackoff = []time.Duration{
	0,
	30 * time.Second,
	2 * time.Minute,
	10 * time.Minute,
}

const maxAttempts = 4

// MaxRetryDuration returns the worst-case wall time a single execution can
// spend in the retry loop: every backoff delay plus a full request timeout
// per attempt. The reconciler's orphan threshold must exceed this, or it
// would re-emit executions that are still being retried.
func MaxRetryDuration() time.Duration {
	var total time.Duration
	for _, d := range defaultBackoff {
		total += d
	}
	return total + maxAttempts*DefaultWebhookTimeout
}

// ProcessTypeWebhook is the process type this dispatcher knows how to run.
const ProcessTypeWebhook = "webhook"

// DefaultWebhookTimeout is used when the process descriptor carries no
// timeout_seconds.
const DefaultWebhookTimeout = 10 * time.Second

// ErrStatusTransitionDenied is returned when a status update would regress
// from a terminal state (delivered/failed).
var ErrStatusTransitionDenied = errors.New("status transition denied: execution already in terminal state")

// ErrUnknownProcessType is returned for descriptors with an unrecognized
// process type.
var ErrUnknownProcessType = errors.New("unknown process type")

type Store interface {
	GetScheduleByID(ctx context.Context, scheduleID uuid.UUID) (*domain.Schedule, error)
	InsertDeliveryAttempt(ctx context.Context, attempt domain.DeliveryAttempt) error
	// UpdateExecutionStatus sets the execution status. Implementations MUST
	// reject transitions from terminal states (delivered/failed) and return
	// ErrStatusTransitionDenied. This ensures idempotency on replay.
	UpdateExecutionStatus(ctx context.Context, executionID uuid.UUID, status domain.ExecutionStatus) error
}

type WebhookSender interface {
	Send(ctx context.Context, req WebhookRequest) WebhookResult
}

type AnalyticsSink interface {
	Record(ctx context.Context, event domain.FireEvent, config domain.AnalyticsConfig) error
}

// MetricsSink defines the interface for recording dispatcher metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	DeliveryAttemptCompleted(attempt int, statusClass string, duration time.Duration)
	DeliveryOutcome(outcome string)
	RetryAttempt(retryable bool)
	EventsInFlightIncr()
	EventsInFlightDecr()
}

type WebhookRequest struct {
	URL       string
	Secret    string
	Timeout   time.Duration
	Payload   WebhookPayload
	AttemptID string
}

type WebhookPayload struct {
	ScheduleID  string `json:"schedule_id"`
	TriggerID   string `json:"trigger_id"`
	ExecutionID string `json:"execution_id"`
	ScheduledAt string `json:"scheduled_at"`
	FiredAt     string `json:"fired_at"`
}

type WebhookResult struct {
	StatusCode int
	Error      error
	Duration   time.Duration
}

func (r WebhookResult) IsSuccess() bool {
	return r.Error == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

func (r WebhookResult) IsRetryable() bool {
	if r.Error != nil {
		return true
	}
	if r.StatusCode == 429 {
		return true
	}
	return r.StatusCode >= 500
}

// webhookProcess is the decoded form of a webhook process descriptor.
type webhookProcess struct {
	URL     string
	Secret  string
	Timeout time.Duration
}

// decodeWebhookProcess interprets a process descriptor of type "webhook".
// Recognized config keys: url (required), secret, timeout_seconds.
func decodeWebhookProcess(p domain.ProcessDescriptor) (webhookProcess, error) {
	if p.Type != ProcessTypeWebhook {
		return webhookProcess{}, fmt.Errorf("%w: %q", ErrUnknownProcessType, p.Type)
	}

	proc := webhookProcess{Timeout: DefaultWebhookTimeout}

	url, ok := p.Config["url"].(string)
	if !ok || url == "" {
		return webhookProcess{}, errors.New("webhook process: url is required")
	}
	proc.URL = url

	if secret, ok := p.Config["secret"].(string); ok {
		proc.Secret = secret
	}

	switch v := p.Config["timeout_seconds"].(type) {
	case nil:
	case int:
		proc.Timeout = time.Duration(v) * time.Second
	case int64:
		proc.Timeout = time.Duration(v) * time.Second
	case float64:
		proc.Timeout = time.Duration(v * float64(time.Second))
	default:
		return webhookProcess{}, fmt.Errorf("webhook process: timeout_seconds has unsupported type %T", v)
	}

	return proc, nil
}

type Dispatcher struct {
	store        Store
	sender       WebhookSender
	analytics    AnalyticsSink // optional, nil = disabled
	metrics      MetricsSink   // optional, nil = disabled
	backoff      []time.Duration
	drainTimeout time.Duration
}

func New(store Store, sender WebhookSender) *Dispatcher {
	return &Dispatcher{
		store:        store,
		sender:       sender,
		backoff:      defaultBackoff,
		drainTimeout: DrainTimeout,
	}
}

// WithDrainTimeout overrides how long shutdown waits for buffered events.
func (d *Dispatcher) WithDrainTimeout(timeout time.Duration) *Dispatcher {
	if timeout > 0 {
		d.drainTimeout = timeout
	}
	return d
}

func (d *Dispatcher) WithAnalytics(sink AnalyticsSink) *Dispatcher {
	d.analytics = sink
	return d
}

// WithMetrics attaches a metrics sink to the dispatcher.
func (d *Dispatcher) WithMetrics(sink MetricsSink) *Dispatcher {
	d.metrics = sink
	return d
}

// Run processes events from the channel until context is cancelled.
// After cancellation, it drains remaining buffered events with a timeout.
func (d *Dispatcher) Run(ctx context.Context, ch <-chan domain.FireEvent) {
	for {
		select {
		case <-ctx.Done():
			d.drain(ch)
			return
		case event := <-ch:
			if err := d.Dispatch(ctx, event); err != nil {
				log.Printf("dispatcher: error: %v", err)
			}
		}
	}
}

// DrainTimeout is the default maximum time to wait for buffered events
// during shutdown.
const DrainTimeout = 30 * time.Second

// drain processes remaining events in the channel buffer after shutdown signal.
// Uses a background context since the main context is already cancelled.
func (d *Dispatcher) drain(ch <-chan domain.FireEvent) {
	drainCtx, cancel := context.WithTimeout(context.Background(), d.drainTimeout)
	defer cancel()

	count := 0
	for {
		select {
		case <-drainCtx.Done():
			if count > 0 {
				log.Printf("dispatcher: drain timeout, processed %d events", count)
			}
			return
		case event, ok := <-ch:
			if !ok {
				log.Printf("dispatcher: drain complete, processed %d events", count)
				return
			}
			if err := d.Dispatch(drainCtx, event); err != nil {
				log.Printf("dispatcher: drain error: %v", err)
			}
			count++
		default:
			// No more buffered events
			if count > 0 {
				log.Printf("dispatcher: drain complete, processed %d events", count)
			}
			return
		}
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, event domain.FireEvent) error {
	// Track in-flight events
	if d.metrics != nil {
		d.metrics.EventsInFlightIncr()
		defer d.metrics.EventsInFlightDecr()
	}

	sched, err := d.store.GetScheduleByID(ctx, event.ScheduleID)
	if err != nil {
		return fmt.Errorf("get schedule: %w", err)
	}

	// Write analytics immediately on every FireEvent, independent of
	// delivery outcome. This counts executions, not successful deliveries.
	d.writeAnalytics(ctx, event, sched)

	proc, err := decodeWebhookProcess(sched.Process)
	if err != nil {
		log.Printf("dispatcher: schedule=%s unusable process descriptor: %v", event.ScheduleID, err)
		if d.metrics != nil {
			d.metrics.DeliveryOutcome("failed")
		}
		if statusErr := d.markExecution(ctx, event, domain.ExecutionStatusFailed); statusErr != nil {
			return statusErr
		}
		return fmt.Errorf("schedule %s: %w", event.ScheduleID, err)
	}

	payload := WebhookPayload{
		ScheduleID:  event.ScheduleID.String(),
		TriggerID:   event.TriggerID.String(),
		ExecutionID: event.ExecutionID.String(),
		ScheduledAt: event.ScheduledAt.UTC().Format(time.RFC3339),
		FiredAt:     event.FiredAt.UTC().Format(time.RFC3339),
	}

	req := WebhookRequest{
		URL:     proc.URL,
		Secret:  proc.Secret,
		Timeout: proc.Timeout,
		Payload: payload,
	}

	delivered, err := d.deliverWithRetry(ctx, event, req)
	if err != nil {
		return err
	}
	if delivered {
		if d.metrics != nil {
			d.metrics.DeliveryOutcome("success")
		}
		return d.markExecution(ctx, event, domain.ExecutionStatusDelivered)
	}
	if d.metrics != nil {
		d.metrics.DeliveryOutcome("failed")
	}
	return d.markExecution(ctx, event, domain.ExecutionStatusFailed)
}

// deliverWithRetry runs the bounded retry loop and reports whether any
// attempt landed. A non-nil error means the loop was interrupted (context
// cancelled), not that delivery failed.
func (d *Dispatcher) deliverWithRetry(ctx context.Context, event domain.FireEvent, req WebhookRequest) (bool, error) {
	var last WebhookResult
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if d.metrics != nil {
				d.metrics.RetryAttempt(last.IsRetryable())
			}
			if err := d.waitBackoff(ctx, event, attempt); err != nil {
				return false, err
			}
		}

		last = d.attemptDelivery(ctx, event, req, attempt)

		if last.IsSuccess() {
			log.Printf("dispatcher: schedule=%s delivered attempt=%d", event.ScheduleID, attempt)
			return true, nil
		}
		if !last.IsRetryable() {
			log.Printf("dispatcher: schedule=%s non-retryable status=%d", event.ScheduleID, last.StatusCode)
			break
		}
		log.Printf("dispatcher: schedule=%s attempt=%d failed status=%d err=%v", event.ScheduleID, attempt, last.StatusCode, last.Error)
	}

	log.Printf("dispatcher: schedule=%s failed status=%d err=%v", event.ScheduleID, last.StatusCode, last.Error)
	return false, nil
}

// waitBackoff sleeps for the attempt's backoff step, aborting on context
// cancellation. Attempts past the schedule reuse its last step.
func (d *Dispatcher) waitBackoff(ctx context.Context, event domain.FireEvent, attempt int) error {
	idx := attempt - 1
	if idx >= len(d.backoff) {
		idx = len(d.backoff) - 1
	}
	backoff := d.backoff[idx]
	log.Printf("dispatcher: schedule=%s attempt=%d backoff=%s", event.ScheduleID, attempt, backoff)

	timer := time.NewTimer(backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// attemptDelivery sends one request and records the attempt row. Recording
// failures are logged, never escalated: the attempt table is an audit trail,
// not the source of truth for execution state.
func (d *Dispatcher) attemptDelivery(ctx context.Context, event domain.FireEvent, req WebhookRequest, attempt int) WebhookResult {
	attemptID := uuid.New()
	req.AttemptID = attemptID.String()

	startedAt := time.Now().UTC()
	result := d.sender.Send(ctx, req)
	finishedAt := time.Now().UTC()

	if d.metrics != nil {
		d.metrics.DeliveryAttemptCompleted(attempt, classifyStatusForMetrics(result.StatusCode, result.Error), result.Duration)
	}

	record := domain.DeliveryAttempt{
		ID:          attemptID,
		ExecutionID: event.ExecutionID,
		Attempt:     attempt,
		StatusCode:  result.StatusCode,
		StartedAt:   startedAt,
		FinishedAt:  finishedAt,
	}
	if result.Error != nil {
		record.Error = result.Error.Error()
	}
	if err := d.store.InsertDeliveryAttempt(ctx, record); err != nil {
		log.Printf("dispatcher: failed to record attempt: %v", err)
	}
	return result
}

// markExecution sets the terminal status, tolerating replays that already
// reached a terminal state.
func (d *Dispatcher) markExecution(ctx context.Context, event domain.FireEvent, status domain.ExecutionStatus) error {
	if err := d.store.UpdateExecutionStatus(ctx, event.ExecutionID, status); err != nil {
		if errors.Is(err, ErrStatusTransitionDenied) {
			log.Printf("dispatcher: schedule=%s execution=%s already terminal, skipping status update", event.ScheduleID, event.ExecutionID)
			return nil
		}
		return err
	}
	return nil
}

// writeAnalytics records execution counters as a best-effort side-effect.
// The sink handles errors internally; analytics never affects dispatch correctness.
func (d *Dispatcher) writeAnalytics(ctx context.Context, event domain.FireEvent, sched *domain.Schedule) {
	if d.analytics == nil {
		if sched.Analytics.Enabled {
			log.Printf("dispatcher: schedule=%s analytics enabled but no sink configured (counters not recorded)", event.ScheduleID)
		}
		return
	}
	if !sched.Analytics.Enabled {
		return
	}
	if err := d.analytics.Record(ctx, event, sched.Analytics); err != nil {
		// Best effort. Losing a counter never blocks delivery.
		log.Printf("dispatcher: analytics record failed schedule=%s: %v", event.ScheduleID, err)
	}
}

// classifyStatusForMetrics maps an HTTP status code and error to a metrics
// status class with bounded cardinality: 2xx, 4xx, 5xx, timeout,
// connection_error, other_error.
func classifyStatusForMetrics(statusCode int, err error) string {
	if err != nil {
		errStr := strings.ToLower(err.Error())
		if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
			return "timeout"
		}
		if strings.Contains(errStr, "connection refused") ||
			strings.Contains(errStr, "no such host") ||
			strings.Contains(errStr, "network is unreachable") ||
			strings.Contains(errStr, "dial") {
			return "connection_error"
		}
		return "other_error"
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500:
		return "5xx"
	default:
		return "other_error"
	}
}
