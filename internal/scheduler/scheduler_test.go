package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/easy-trigger/internal/domain"
	"github.com/djlord-it/easy-trigger/internal/trigger"
)

// mockStore tracks executions and enforces idempotency on
// (schedule_id, scheduled_at).
type mockStore struct {
	mu         sync.Mutex
	executions map[string]domain.Execution
	schedules  []*domain.Schedule
	nextByID   map[uuid.UUID]*time.Time
}

func newMockStore() *mockStore {
	return &mockStore{
		executions: make(map[string]domain.Execution),
		nextByID:   make(map[uuid.UUID]*time.Time),
	}
}

func (s *mockStore) GetActiveSchedules(ctx context.Context) ([]*domain.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedules, nil
}

func (s *mockStore) GetLastFireTime(ctx context.Context, scheduleID uuid.UUID) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var last *time.Time
	for _, exec := range s.executions {
		if exec.ScheduleID != scheduleID {
			continue
		}
		if last == nil || exec.FiredAt.After(*last) {
			t := exec.FiredAt
			last = &t
		}
	}
	return last, nil
}

func (s *mockStore) InsertExecution(ctx context.Context, exec domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := exec.ScheduleID.String() + "|" + exec.ScheduledAt.Format(time.RFC3339)
	if _, exists := s.executions[key]; exists {
		return ErrDuplicateExecution
	}
	s.executions[key] = exec
	return nil
}

func (s *mockStore) UpdateNextExecution(ctx context.Context, scheduleID uuid.UUID, next *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextByID[scheduleID] = next
	return nil
}

func (s *mockStore) addSchedule(sched *domain.Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules = append(s.schedules, sched)
}

func (s *mockStore) executionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.executions)
}

// mockEmitter tracks emitted fire events.
type mockEmitter struct {
	mu     sync.Mutex
	events []domain.FireEvent
}

func (e *mockEmitter) Emit(ctx context.Context, event domain.FireEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *mockEmitter) eventCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}

func intervalSchedule(t *testing.T, minutes int) *domain.Schedule {
	t.Helper()
	trig, err := domain.NewTrigger("interval-trigger", domain.IntervalConfig{IntervalMinutes: minutes})
	if err != nil {
		t.Fatalf("NewTrigger: %v", err)
	}
	sched, err := domain.NewSchedule(trig, domain.ProcessDescriptor{
		Type:   "webhook",
		Config: map[string]any{"url": "https://example.com/hook"},
	})
	if err != nil {
		t.Fatalf("NewSchedule: %v", err)
	}
	return sched
}

func onceSchedule(t *testing.T, start time.Time) *domain.Schedule {
	t.Helper()
	trig, err := domain.NewTrigger("once-trigger", domain.OnceConfig{StartTime: start})
	if err != nil {
		t.Fatalf("NewTrigger: %v", err)
	}
	sched, err := domain.NewSchedule(trig, domain.ProcessDescriptor{
		Type:   "webhook",
		Config: map[string]any{"url": "https://example.com/hook"},
	})
	if err != nil {
		t.Fatalf("NewSchedule: %v", err)
	}
	return sched
}

func newTestScheduler(store Store, emitter EventEmitter, now time.Time) *Scheduler {
	evaluator := trigger.NewEvaluator(trigger.NewRegistry(
		trigger.WithClock(func() time.Time { return now }),
	))
	sched := New(Config{TickInterval: time.Minute}, store, evaluator, emitter)
	sched.clock = func() time.Time { return now }
	return sched
}

// TestScheduler_FiresDueSchedule verifies that a schedule whose cached next
// execution has passed fires exactly once and gets a refreshed cache.
func TestScheduler_FiresDueSchedule(t *testing.T) {
	store := newMockStore()
	emitter := &mockEmitter{}

	now := time.Date(2024, 1, 15, 10, 0, 30, 0, time.UTC)
	due := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	sched := intervalSchedule(t, 30)
	sched.UpdateNextExecution(&due)
	store.addSchedule(sched)

	loop := newTestScheduler(store, emitter, now)

	if err := loop.processTick(context.Background()); err != nil {
		t.Fatalf("processTick: %v", err)
	}

	if store.executionCount() != 1 {
		t.Fatalf("expected 1 execution, got %d", store.executionCount())
	}
	if emitter.eventCount() != 1 {
		t.Fatalf("expected 1 event, got %d", emitter.eventCount())
	}

	event := emitter.events[0]
	if !event.ScheduledAt.Equal(due) {
		t.Errorf("ScheduledAt = %v, want %v", event.ScheduledAt, due)
	}
	if event.ScheduleID != sched.ID {
		t.Errorf("ScheduleID = %v, want %v", event.ScheduleID, sched.ID)
	}
	if event.IdempotencyKey == "" {
		t.Error("IdempotencyKey should not be empty")
	}

	// Cache refreshed: fire time + 30 minutes.
	wantNext := now.Add(30 * time.Minute)
	if sched.NextExecutionUTC == nil || !sched.NextExecutionUTC.Equal(wantNext) {
		t.Errorf("NextExecutionUTC = %v, want %v", sched.NextExecutionUTC, wantNext)
	}
	if stored := store.nextByID[sched.ID]; stored == nil || !stored.Equal(wantNext) {
		t.Errorf("stored next = %v, want %v", stored, wantNext)
	}
}

// TestScheduler_FutureScheduleDoesNotFire verifies that nothing fires before
// the cached next execution.
func TestScheduler_FutureScheduleDoesNotFire(t *testing.T) {
	store := newMockStore()
	emitter := &mockEmitter{}

	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	future := now.Add(5 * time.Minute)

	sched := intervalSchedule(t, 30)
	sched.UpdateNextExecution(&future)
	store.addSchedule(sched)

	loop := newTestScheduler(store, emitter, now)

	if err := loop.processTick(context.Background()); err != nil {
		t.Fatalf("processTick: %v", err)
	}
	if emitter.eventCount() != 0 {
		t.Errorf("expected 0 events, got %d", emitter.eventCount())
	}
}

// TestScheduler_ColdStart_ComputesNextExecution verifies that a schedule with
// no cached next execution gets one computed and persisted without firing.
func TestScheduler_ColdStart_ComputesNextExecution(t *testing.T) {
	store := newMockStore()
	emitter := &mockEmitter{}

	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	sched := intervalSchedule(t, 30)
	store.addSchedule(sched)

	loop := newTestScheduler(store, emitter, now)

	if err := loop.processTick(context.Background()); err != nil {
		t.Fatalf("processTick: %v", err)
	}

	if emitter.eventCount() != 0 {
		t.Errorf("expected 0 events on cold start, got %d", emitter.eventCount())
	}
	wantNext := now.Add(30 * time.Minute)
	if sched.NextExecutionUTC == nil || !sched.NextExecutionUTC.Equal(wantNext) {
		t.Errorf("NextExecutionUTC = %v, want %v", sched.NextExecutionUTC, wantNext)
	}
	if stored := store.nextByID[sched.ID]; stored == nil || !stored.Equal(wantNext) {
		t.Errorf("stored next = %v, want %v", stored, wantNext)
	}
}

// TestScheduler_OnceFiresExactlyOnce verifies that a one-shot schedule fires
// a single time and then goes terminal, even across restarts that clear the
// cached next execution.
func TestScheduler_OnceFiresExactlyOnce(t *testing.T) {
	store := newMockStore()
	emitter := &mockEmitter{}

	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	start := now.Add(-time.Hour) // missed while down

	sched := onceSchedule(t, start)
	store.addSchedule(sched)

	loop := newTestScheduler(store, emitter, now)
	ctx := context.Background()

	// Cold start: due immediately, fires once.
	if err := loop.processTick(ctx); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	// The cold-start pass computes "fire now"; the due check fires it on the
	// same tick.
	if store.executionCount() != 1 {
		t.Fatalf("expected 1 execution after first tick, got %d", store.executionCount())
	}
	if sched.NextExecutionUTC != nil {
		t.Errorf("one-shot should be terminal after firing, got next %v", sched.NextExecutionUTC)
	}

	// Simulated restart losing the cache: the recorded fire time keeps the
	// trigger exhausted.
	sched.UpdateNextExecution(nil)
	if err := loop.processTick(ctx); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if store.executionCount() != 1 {
		t.Errorf("expected still 1 execution after restart, got %d", store.executionCount())
	}
	if emitter.eventCount() != 1 {
		t.Errorf("expected 1 event total, got %d", emitter.eventCount())
	}
}

// TestScheduler_Idempotency_SameScheduleSameInstant verifies that replaying a
// tick for the same (schedule, scheduled_at) cannot create duplicates.
func TestScheduler_Idempotency_SameScheduleSameInstant(t *testing.T) {
	store := newMockStore()
	emitter := &mockEmitter{}

	now := time.Date(2024, 1, 15, 10, 0, 30, 0, time.UTC)
	due := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	sched := intervalSchedule(t, 30)
	sched.UpdateNextExecution(&due)
	store.addSchedule(sched)

	loop := newTestScheduler(store, emitter, now)
	ctx := context.Background()

	if err := loop.processTick(ctx); err != nil {
		t.Fatalf("first tick: %v", err)
	}

	// Simulate a replay: the cache is rolled back to the already-fired
	// instant (crash between insert and cache update).
	sched.UpdateNextExecution(&due)
	if err := loop.processTick(ctx); err != nil {
		t.Fatalf("second tick: %v", err)
	}

	if store.executionCount() != 1 {
		t.Errorf("expected 1 execution (idempotent), got %d", store.executionCount())
	}
	if emitter.eventCount() != 1 {
		t.Errorf("expected 1 event (idempotent), got %d", emitter.eventCount())
	}
}

// TestScheduler_DisabledTriggerSkipped verifies that schedules whose trigger
// is disabled never fire.
func TestScheduler_DisabledTriggerSkipped(t *testing.T) {
	store := newMockStore()
	emitter := &mockEmitter{}

	now := time.Date(2024, 1, 15, 10, 0, 30, 0, time.UTC)
	due := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	sched := intervalSchedule(t, 30)
	sched.UpdateNextExecution(&due)
	sched.Trigger.SetEnabled(false)
	store.addSchedule(sched)

	loop := newTestScheduler(store, emitter, now)

	if err := loop.processTick(context.Background()); err != nil {
		t.Fatalf("processTick: %v", err)
	}
	if emitter.eventCount() != 0 {
		t.Errorf("expected 0 events for disabled trigger, got %d", emitter.eventCount())
	}
}

// TestScheduler_ManualNeverAutoFires verifies that manual schedules are left
// alone by the loop but can be fired on demand.
func TestScheduler_ManualNeverAutoFires(t *testing.T) {
	store := newMockStore()
	emitter := &mockEmitter{}

	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	trig, err := domain.NewTrigger("manual-trigger", domain.NewManualConfig())
	if err != nil {
		t.Fatalf("NewTrigger: %v", err)
	}
	sched, err := domain.NewSchedule(trig, domain.ProcessDescriptor{
		Type:   "webhook",
		Config: map[string]any{"url": "https://example.com/hook"},
	})
	if err != nil {
		t.Fatalf("NewSchedule: %v", err)
	}
	store.addSchedule(sched)

	loop := newTestScheduler(store, emitter, now)
	ctx := context.Background()

	if err := loop.processTick(ctx); err != nil {
		t.Fatalf("processTick: %v", err)
	}
	if emitter.eventCount() != 0 {
		t.Fatalf("manual schedule must not auto-fire, got %d events", emitter.eventCount())
	}
	if sched.NextExecutionUTC != nil {
		t.Errorf("manual schedule should have no next execution, got %v", sched.NextExecutionUTC)
	}

	if err := loop.FireNow(ctx, sched); err != nil {
		t.Fatalf("FireNow: %v", err)
	}
	if emitter.eventCount() != 1 {
		t.Errorf("expected 1 event after FireNow, got %d", emitter.eventCount())
	}
	if !emitter.events[0].ScheduledAt.Equal(now) {
		t.Errorf("FireNow ScheduledAt = %v, want %v", emitter.events[0].ScheduledAt, now)
	}
}

// TestScheduler_DifferentSchedulesSameInstant verifies that distinct
// schedules due at the same instant each fire.
func TestScheduler_DifferentSchedulesSameInstant(t *testing.T) {
	store := newMockStore()
	emitter := &mockEmitter{}

	now := time.Date(2024, 1, 15, 10, 0, 30, 0, time.UTC)
	due := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		sched := intervalSchedule(t, 30)
		sched.UpdateNextExecution(&due)
		store.addSchedule(sched)
	}

	loop := newTestScheduler(store, emitter, now)

	if err := loop.processTick(context.Background()); err != nil {
		t.Fatalf("processTick: %v", err)
	}
	if store.executionCount() != 2 {
		t.Errorf("expected 2 executions (one per schedule), got %d", store.executionCount())
	}
}
