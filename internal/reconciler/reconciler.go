// Package reconciler detects and re-emits orphaned executions.
//
// An execution is orphaned when it has status='emitted' but was never
// delivered to the dispatcher (e.g., due to buffer overflow or crash).
//
// The reconciler periodically scans for orphaned executions and re-emits
// them to the event bus. Idempotency is guaranteed by the dispatcher's
// terminal state guards - if an execution was already processed, the
// re-emit is safely ignored.
package reconciler

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/easy-trigger/internal/dispatcher"
	"github.com/djlord-it/easy-trigger/internal/domain"
)

// SafetyMargin is added on top of the dispatcher's worst-case retry window
// when deriving the default orphan threshold. An execution younger than
// MaxRetryDuration may still be in the retry loop; re-emitting it would
// race the dispatcher.
const SafetyMargin = 5 * time.Minute

// OrphanedExecution is an execution stuck in 'emitted' status plus the
// trigger identity needed to rebuild its fire event.
type OrphanedExecution struct {
	Execution domain.Execution
	TriggerID uuid.UUID
}

// Store defines the interface for fetching orphaned executions.
type Store interface {
	GetOrphanedExecutions(ctx context.Context, olderThan time.Time, maxResults int) ([]OrphanedExecution, error)
}

// EventEmitter defines the interface for emitting fire events.
type EventEmitter interface {
	Emit(ctx context.Context, event domain.FireEvent) error
}

// MetricsSink receives reconciler observability signals.
// Implementations must not block.
type MetricsSink interface {
	OrphanedExecutionsUpdate(count int)
}

// Config holds reconciler configuration.
type Config struct {
	// Interval is how often the reconciler runs.
	// Default: 5 minutes.
	Interval time.Duration

	// Threshold is the age after which an emitted execution is considered
	// orphaned. Must exceed the dispatcher's worst-case retry window.
	// Default: dispatcher.MaxRetryDuration() + SafetyMargin.
	Threshold time.Duration

	// BatchSize is the maximum number of orphans to process per cycle.
	// Default: 100.
	BatchSize int
}

// DefaultConfig returns the default reconciler configuration.
func DefaultConfig() Config {
	return Config{
		Interval:  5 * time.Minute,
		Threshold: dispatcher.MaxRetryDuration() + SafetyMargin,
		BatchSize: 100,
	}
}

// Reconciler detects orphaned executions and re-emits them.
type Reconciler struct {
	config  Config
	store   Store
	emitter EventEmitter
	metrics MetricsSink
	clock   func() time.Time
}

// New creates a new Reconciler.
func New(config Config, store Store, emitter EventEmitter) *Reconciler {
	return &Reconciler{
		config:  config,
		store:   store,
		emitter: emitter,
		clock:   time.Now,
	}
}

// WithMetrics attaches a metrics sink.
func (r *Reconciler) WithMetrics(sink MetricsSink) *Reconciler {
	r.metrics = sink
	return r
}

// Run starts the reconciliation loop. It blocks until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	log.Printf("reconciler: started (interval=%s, threshold=%s, batch=%d)",
		r.config.Interval, r.config.Threshold, r.config.BatchSize)

	// Run immediately on startup, then on ticker
	r.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("reconciler: stopped")
			return
		case <-ticker.C:
			r.runCycle(ctx)
		}
	}
}

// runCycle executes one reconciliation cycle.
func (r *Reconciler) runCycle(ctx context.Context) {
	now := r.clock().UTC()
	threshold := now.Add(-r.config.Threshold)

	orphans, err := r.store.GetOrphanedExecutions(ctx, threshold, r.config.BatchSize)
	if err != nil {
		// DB error: log and abort cycle. Will retry next interval.
		log.Printf("reconciler: failed to fetch orphans: %v", err)
		return
	}

	if r.metrics != nil {
		r.metrics.OrphanedExecutionsUpdate(len(orphans))
	}

	if len(orphans) == 0 {
		// Nothing to do. Silent success.
		return
	}

	log.Printf("reconciler: found %d orphaned executions", len(orphans))

	emitted := 0
	failed := 0

	for _, orphan := range orphans {
		// Check context before each emit to allow graceful shutdown
		if ctx.Err() != nil {
			log.Printf("reconciler: cycle interrupted, processed %d/%d orphans", emitted+failed, len(orphans))
			return
		}

		exec := orphan.Execution
		if err := r.emitter.Emit(ctx, rebuildEvent(orphan, now)); err != nil {
			// Buffer full or cancelled; next cycle picks the orphan up again.
			log.Printf("reconciler: failed to re-emit execution=%s schedule=%s: %v",
				exec.ID, exec.ScheduleID, err)
			failed++
			continue
		}

		log.Printf("reconciler: re-emitted execution=%s schedule=%s scheduled_at=%s (age=%s)",
			exec.ID, exec.ScheduleID, exec.ScheduledAt.Format(time.RFC3339),
			now.Sub(exec.CreatedAt).Round(time.Second))
		emitted++
	}

	log.Printf("reconciler: cycle complete, re-emitted=%d, failed=%d", emitted, failed)
}

// rebuildEvent reconstructs the fire event the scheduler originally emitted
// for a stuck execution. The idempotency key is derived the same way, so the
// dispatcher sees the replay as the same delivery.
func rebuildEvent(orphan OrphanedExecution, now time.Time) domain.FireEvent {
	exec := orphan.Execution
	return domain.FireEvent{
		ExecutionID:    exec.ID,
		ScheduleID:     exec.ScheduleID,
		TriggerID:      orphan.TriggerID,
		ScheduledAt:    exec.ScheduledAt,
		FiredAt:        exec.FiredAt,
		IdempotencyKey: domain.IdempotencyKey(exec.ScheduleID, exec.ScheduledAt),
		CreatedAt:      now,
	}
}
