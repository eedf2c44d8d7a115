// Package scheduler implements the polling loop that owns schedule state:
// it compares each active schedule's cached next-execution instant to the
// wall clock, emits fire events when due, and feeds fire timestamps back
// into the trigger engine to refresh the cache.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/easy-trigger/internal/domain"
)

// ErrDuplicateExecution is returned by stores when an execution for the same
// (schedule, scheduled_at) pair already exists.
var ErrDuplicateExecution = errors.New("execution already exists")

type Store interface {
	// GetActiveSchedules returns active schedules with triggers attached.
	GetActiveSchedules(ctx context.Context) ([]*domain.Schedule, error)

	// GetLastFireTime returns the FiredAt of the schedule's most recent
	// execution, or nil if it has never fired. Feeding it into the trigger
	// engine keeps one-shot triggers exhausted across restarts.
	GetLastFireTime(ctx context.Context, scheduleID uuid.UUID) (*time.Time, error)

	InsertExecution(ctx context.Context, exec domain.Execution) error
	UpdateNextExecution(ctx context.Context, scheduleID uuid.UUID, next *time.Time) error
}

// Evaluator is the trigger-engine surface the loop consumes.
// trigger.Evaluator satisfies it.
type Evaluator interface {
	NextExecution(t *domain.Trigger, lastExecutionUTC *time.Time) (*time.Time, error)
}

type EventEmitter interface {
	Emit(ctx context.Context, event domain.FireEvent) error
}

// MetricsSink records scheduler metrics. Implementations must not block.
type MetricsSink interface {
	TickStarted()
	TickCompleted(duration time.Duration, fired int, err error)
	ScheduleFired(kind domain.TriggerKind)
	EvaluationFailed(kind domain.TriggerKind)
}

type Config struct {
	TickInterval time.Duration
}

type Scheduler struct {
	config    Config
	store     Store
	evaluator Evaluator
	emitter   EventEmitter
	metrics   MetricsSink // optional, nil = disabled
	clock     func() time.Time
}

func New(config Config, store Store, evaluator Evaluator, emitter EventEmitter) *Scheduler {
	return &Scheduler{
		config:    config,
		store:     store,
		evaluator: evaluator,
		emitter:   emitter,
		clock:     time.Now,
	}
}

// WithMetrics attaches a metrics sink to the scheduler.
func (s *Scheduler) WithMetrics(sink MetricsSink) *Scheduler {
	s.metrics = sink
	return s
}

func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	log.Printf("scheduler: started, tick=%s", s.config.TickInterval)

	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler: stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.processTick(ctx); err != nil {
				log.Printf("scheduler: tick error: %v", err)
			}
		}
	}
}

func (s *Scheduler) processTick(ctx context.Context) error {
	start := s.clock().UTC()
	if s.metrics != nil {
		s.metrics.TickStarted()
	}

	fired := 0
	err := func() error {
		schedules, err := s.store.GetActiveSchedules(ctx)
		if err != nil {
			return fmt.Errorf("get schedules: %w", err)
		}

		for _, sched := range schedules {
			n, err := s.processSchedule(ctx, sched, start)
			fired += n
			if err != nil {
				log.Printf("scheduler: schedule %s error: %v", sched.ID, err)
			}
		}
		return nil
	}()

	if s.metrics != nil {
		s.metrics.TickCompleted(s.clock().UTC().Sub(start), fired, err)
	}
	return err
}

// processSchedule advances one schedule: fills a missing next-execution
// cache, fires when due, and refreshes the cache from the fire time.
// Returns the number of executions emitted (0 or 1 per tick).
func (s *Scheduler) processSchedule(ctx context.Context, sched *domain.Schedule, now time.Time) (int, error) {
	if sched.Trigger == nil || !sched.Trigger.Enabled {
		return 0, nil
	}

	if sched.NextExecutionUTC == nil {
		if err := s.refreshFromLast(ctx, sched); err != nil {
			return 0, err
		}
		if sched.NextExecutionUTC == nil {
			// Manual or exhausted trigger: nothing to track.
			return 0, nil
		}
	}

	if sched.NextExecutionUTC.After(now) {
		return 0, nil
	}

	scheduledAt := sched.NextExecutionUTC.UTC()
	if err := s.fire(ctx, sched, scheduledAt, now); err != nil {
		return 0, err
	}

	// The fire instant becomes the last execution for the next calculation.
	next, err := s.evaluator.NextExecution(sched.Trigger, &now)
	if err != nil {
		if s.metrics != nil {
			s.metrics.EvaluationFailed(sched.Trigger.Kind)
		}
		return 1, fmt.Errorf("next execution: %w", err)
	}
	sched.UpdateNextExecution(next)
	if err := s.store.UpdateNextExecution(ctx, sched.ID, sched.NextExecutionUTC); err != nil {
		return 1, fmt.Errorf("store next execution: %w", err)
	}
	return 1, nil
}

// refreshFromLast recomputes the cached next execution from the most recent
// recorded fire time.
func (s *Scheduler) refreshFromLast(ctx context.Context, sched *domain.Schedule) error {
	last, err := s.store.GetLastFireTime(ctx, sched.ID)
	if err != nil {
		return fmt.Errorf("get last fire time: %w", err)
	}

	next, err := s.evaluator.NextExecution(sched.Trigger, last)
	if err != nil {
		if s.metrics != nil {
			s.metrics.EvaluationFailed(sched.Trigger.Kind)
		}
		return fmt.Errorf("next execution: %w", err)
	}
	sched.UpdateNextExecution(next)

	if next == nil {
		return nil
	}
	if err := s.store.UpdateNextExecution(ctx, sched.ID, sched.NextExecutionUTC); err != nil {
		return fmt.Errorf("store next execution: %w", err)
	}
	return nil
}

// FireNow emits an execution for the schedule immediately, outside the
// calculation path. The API uses it for manual triggers and forced runs.
func (s *Scheduler) FireNow(ctx context.Context, sched *domain.Schedule) error {
	now := s.clock().UTC()
	return s.fire(ctx, sched, now, now)
}

func (s *Scheduler) fire(ctx context.Context, sched *domain.Schedule, scheduledAt, now time.Time) error {
	executionID := uuid.New()

	execution := domain.Execution{
		ID:          executionID,
		ScheduleID:  sched.ID,
		ScheduledAt: scheduledAt,
		FiredAt:     now,
		Status:      domain.ExecutionStatusEmitted,
		CreatedAt:   now,
	}

	if err := s.store.InsertExecution(ctx, execution); err != nil {
		if errors.Is(err, ErrDuplicateExecution) {
			return nil // already emitted for this instant
		}
		return fmt.Errorf("insert execution: %w", err)
	}

	event := domain.FireEvent{
		ExecutionID:    executionID,
		ScheduleID:     sched.ID,
		TriggerID:      sched.Trigger.ID,
		ScheduledAt:    scheduledAt,
		FiredAt:        now,
		IdempotencyKey: domain.IdempotencyKey(sched.ID, scheduledAt),
		CreatedAt:      now,
	}

	if err := s.emitter.Emit(ctx, event); err != nil {
		return fmt.Errorf("emit: %w", err)
	}

	if s.metrics != nil {
		s.metrics.ScheduleFired(sched.Trigger.Kind)
	}
	log.Printf("scheduler: fired schedule=%s kind=%s scheduled_at=%s",
		sched.ID, sched.Trigger.Kind, scheduledAt.Format(time.RFC3339))
	return nil
}

