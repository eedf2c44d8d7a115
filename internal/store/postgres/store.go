// Package postgres persists triggers, schedules, executions and delivery
// attempts. Trigger and process configurations are stored as JSONB in the
// untyped key/value form and decoded back through domain.ConfigFromMap.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/djlord-it/easy-trigger/internal/api"
	"github.com/djlord-it/easy-trigger/internal/dispatcher"
	"github.com/djlord-it/easy-trigger/internal/domain"
	"github.com/djlord-it/easy-trigger/internal/reconciler"
	"github.com/djlord-it/easy-trigger/internal/scheduler"
)

// Store implements scheduler.Store, dispatcher.Store, api.Store and
// reconciler.Store using PostgreSQL.
type Store struct {
	db        *sql.DB
	opTimeout time.Duration
}

// New creates a new PostgreSQL store. Every operation runs under opTimeout
// so a stalled database surfaces as an error instead of a hung tick
// (zero disables the deadline).
func New(db *sql.DB, opTimeout time.Duration) *Store {
	return &Store{db: db, opTimeout: opTimeout}
}

// opCtx bounds a single store operation. The returned cancel must be called.
func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// GetActiveSchedules returns all active schedules with their triggers.
func (s *Store) GetActiveSchedules(ctx context.Context) ([]*domain.Schedule, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryGetActiveSchedules)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sched)
	}
	return result, rows.Err()
}

// GetScheduleByID returns one schedule with its trigger.
func (s *Store) GetScheduleByID(ctx context.Context, scheduleID uuid.UUID) (*domain.Schedule, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryGetScheduleByID, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, sql.ErrNoRows
	}
	return scanSchedule(rows)
}

// ListSchedules returns schedules with triggers, newest first.
func (s *Store) ListSchedules(ctx context.Context, limit, offset int) ([]*domain.Schedule, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListSchedules, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sched)
	}
	return result, rows.Err()
}

// CreateSchedule inserts the schedule and its trigger in one transaction.
func (s *Store) CreateSchedule(ctx context.Context, sched *domain.Schedule) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	triggerConfig, err := json.Marshal(domain.ConfigToMap(sched.Trigger.Config))
	if err != nil {
		return fmt.Errorf("marshal trigger config: %w", err)
	}
	triggerMetadata, err := json.Marshal(sched.Trigger.Metadata)
	if err != nil {
		return fmt.Errorf("marshal trigger metadata: %w", err)
	}
	processConfig, err := json.Marshal(sched.Process.Config)
	if err != nil {
		return fmt.Errorf("marshal process config: %w", err)
	}
	scheduleMetadata, err := json.Marshal(sched.Metadata)
	if err != nil {
		return fmt.Errorf("marshal schedule metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, queryInsertTrigger,
		sched.Trigger.ID,
		sched.Trigger.Name,
		string(sched.Trigger.Kind),
		triggerConfig,
		sched.Trigger.Enabled,
		triggerMetadata,
		sched.Trigger.CreatedAt,
		sched.Trigger.ModifiedAt,
	)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, queryInsertSchedule,
		sched.ID,
		sched.Trigger.ID,
		sched.Process.Type,
		processConfig,
		sched.Active,
		nullableTime(sched.NextExecutionUTC),
		sched.Description,
		scheduleMetadata,
		sched.Analytics.Enabled,
		string(sched.Analytics.Type),
		sched.Analytics.Window.Milliseconds(),
		sched.Analytics.Retention.Milliseconds(),
		sched.CreatedAt,
		sched.UpdatedAt,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// UpdateNextExecution persists the cached next-execution instant (nil means
// the trigger will not fire again).
func (s *Store) UpdateNextExecution(ctx context.Context, scheduleID uuid.UUID, next *time.Time) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryUpdateNextExecution, scheduleID, nullableTime(next))
	return err
}

// UpdateActiveStatus pauses or resumes a schedule.
func (s *Store) UpdateActiveStatus(ctx context.Context, scheduleID uuid.UUID, active bool) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var id uuid.UUID
	err := s.db.QueryRowContext(ctx, queryUpdateActiveStatus, scheduleID, active).Scan(&id)
	if err != nil {
		return err
	}
	return nil
}

// DeleteSchedule removes the schedule, its trigger and all execution history.
func (s *Store) DeleteSchedule(ctx context.Context, scheduleID uuid.UUID) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var deletedID uuid.UUID
	return s.db.QueryRowContext(ctx, queryDeleteSchedule, scheduleID).Scan(&deletedID)
}

// InsertExecution inserts a new execution record.
// Returns scheduler.ErrDuplicateExecution if (schedule_id, scheduled_at)
// already exists.
func (s *Store) InsertExecution(ctx context.Context, exec domain.Execution) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryInsertExecution,
		exec.ID,
		exec.ScheduleID,
		exec.ScheduledAt,
		exec.FiredAt,
		string(exec.Status),
		exec.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return scheduler.ErrDuplicateExecution
		}
		return err
	}
	return nil
}

// GetLastFireTime returns the most recent fired_at for the schedule, or nil
// if it has never fired.
func (s *Store) GetLastFireTime(ctx context.Context, scheduleID uuid.UUID) (*time.Time, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var firedAt time.Time
	err := s.db.QueryRowContext(ctx, queryGetLastFireTime, scheduleID).Scan(&firedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	firedAt = firedAt.UTC()
	return &firedAt, nil
}

// ListExecutions returns executions for a schedule, newest first.
func (s *Store) ListExecutions(ctx context.Context, scheduleID uuid.UUID, limit, offset int) ([]domain.Execution, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListExecutions, scheduleID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, exec)
	}
	return result, rows.Err()
}

// InsertDeliveryAttempt inserts a new delivery attempt record.
func (s *Store) InsertDeliveryAttempt(ctx context.Context, attempt domain.DeliveryAttempt) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryInsertDeliveryAttempt,
		attempt.ID,
		attempt.ExecutionID,
		attempt.Attempt,
		attempt.StatusCode,
		attempt.Error,
		attempt.StartedAt,
		attempt.FinishedAt,
	)
	return err
}

// UpdateExecutionStatus updates the status of an execution.
// Returns dispatcher.ErrStatusTransitionDenied if the execution is already in
// a terminal state. Uses an atomic UPDATE with the guard in the WHERE clause
// to prevent TOCTOU race conditions.
func (s *Store) UpdateExecutionStatus(ctx context.Context, executionID uuid.UUID, status domain.ExecutionStatus) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, queryUpdateExecutionStatus, string(status), executionID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		// Either: (a) execution not found, or (b) already in terminal state.
		// Distinguish by checking if the row exists.
		var currentStatus string
		err := s.db.QueryRowContext(ctx, queryGetExecutionStatus, executionID).Scan(&currentStatus)
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		if err != nil {
			return err
		}
		// Row exists but wasn't updated => terminal state
		return dispatcher.ErrStatusTransitionDenied
	}

	return nil
}

// GetOrphanedExecutions returns executions stuck in 'emitted' status created
// before the given threshold, oldest first, limited to maxResults. The
// owning trigger id rides along so events can be rebuilt.
func (s *Store) GetOrphanedExecutions(ctx context.Context, olderThan time.Time, maxResults int) ([]reconciler.OrphanedExecution, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryGetOrphanedExecutions, olderThan, maxResults)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []reconciler.OrphanedExecution
	for rows.Next() {
		var (
			exec      domain.Execution
			triggerID uuid.UUID
		)
		if err := rows.Scan(&exec.ID, &exec.ScheduleID, &exec.ScheduledAt, &exec.FiredAt,
			&exec.Status, &exec.CreatedAt, &triggerID); err != nil {
			return nil, err
		}
		exec.ScheduledAt = exec.ScheduledAt.UTC()
		exec.FiredAt = exec.FiredAt.UTC()
		exec.CreatedAt = exec.CreatedAt.UTC()
		result = append(result, reconciler.OrphanedExecution{Execution: exec, TriggerID: triggerID})
	}
	return result, rows.Err()
}

func scanSchedule(rows *sql.Rows) (*domain.Schedule, error) {
	var (
		sched            domain.Schedule
		trig             domain.Trigger
		processConfig    []byte
		scheduleMetadata []byte
		nextExecution    sql.NullTime
		analyticsType    string
		windowMs         int64
		retentionMs      int64
		triggerKind      string
		triggerConfig    []byte
		triggerMetadata  []byte
	)

	err := rows.Scan(
		&sched.ID,
		&sched.Process.Type,
		&processConfig,
		&sched.Active,
		&nextExecution,
		&sched.Description,
		&scheduleMetadata,
		&sched.Analytics.Enabled,
		&analyticsType,
		&windowMs,
		&retentionMs,
		&sched.CreatedAt,
		&sched.UpdatedAt,
		&trig.ID,
		&trig.Name,
		&triggerKind,
		&triggerConfig,
		&trig.Enabled,
		&triggerMetadata,
		&trig.CreatedAt,
		&trig.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(processConfig, &sched.Process.Config); err != nil {
		return nil, fmt.Errorf("unmarshal process config: %w", err)
	}
	if len(scheduleMetadata) > 0 {
		if err := json.Unmarshal(scheduleMetadata, &sched.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal schedule metadata: %w", err)
		}
	}
	if len(triggerMetadata) > 0 {
		if err := json.Unmarshal(triggerMetadata, &trig.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal trigger metadata: %w", err)
		}
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(triggerConfig, &rawConfig); err != nil {
		return nil, fmt.Errorf("unmarshal trigger config: %w", err)
	}
	trig.Kind = domain.TriggerKind(triggerKind)
	trig.Config, err = domain.ConfigFromMap(trig.Kind, rawConfig)
	if err != nil {
		return nil, fmt.Errorf("decode trigger config: %w", err)
	}

	if nextExecution.Valid {
		next := nextExecution.Time.UTC()
		sched.NextExecutionUTC = &next
	}
	sched.Analytics.Type = domain.AnalyticsType(analyticsType)
	sched.Analytics.Window = time.Duration(windowMs) * time.Millisecond
	sched.Analytics.Retention = time.Duration(retentionMs) * time.Millisecond

	sched.Trigger = &trig
	return &sched, nil
}

func scanExecution(rows *sql.Rows) (domain.Execution, error) {
	var exec domain.Execution
	var status string

	err := rows.Scan(
		&exec.ID,
		&exec.ScheduleID,
		&exec.ScheduledAt,
		&exec.FiredAt,
		&status,
		&exec.CreatedAt,
	)
	if err != nil {
		return domain.Execution{}, err
	}
	exec.Status = domain.ExecutionStatus(status)
	return exec, nil
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// isDuplicateKeyError checks if the error is a PostgreSQL unique violation.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	errStr := err.Error()
	return strings.Contains(errStr, "23505") ||
		strings.Contains(errStr, "unique constraint") ||
		strings.Contains(errStr, "duplicate key")
}

// Compile-time interface assertions
var (
	_ scheduler.Store  = (*Store)(nil)
	_ dispatcher.Store = (*Store)(nil)
	_ api.Store        = (*Store)(nil)
	_ reconciler.Store = (*Store)(nil)
)
