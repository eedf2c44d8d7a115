package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ExecutionStatus string

const (
	ExecutionStatusEmitted   ExecutionStatus = "emitted"
	ExecutionStatusDelivered ExecutionStatus = "delivered"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// Execution records that a schedule fired at a specific instant. The
// FiredAt timestamp is what the scheduler feeds back into the trigger
// engine as the last execution.
type Execution struct {
	ID         uuid.UUID
	ScheduleID uuid.UUID

	ScheduledAt time.Time // intended fire time (UTC)
	FiredAt     time.Time // actual emission time (UTC)
	Status      ExecutionStatus

	CreatedAt time.Time
}

// DeliveryAttempt records one process-delivery attempt for an execution.
type DeliveryAttempt struct {
	ID          uuid.UUID
	ExecutionID uuid.UUID

	Attempt    int
	StatusCode int
	Error      string

	StartedAt  time.Time
	FinishedAt time.Time
}

// IdempotencyKey derives the stable deduplication key for a schedule firing
// at a given instant. The same (schedule, scheduled-at) pair always yields
// the same key, so replayed events collapse downstream.
func IdempotencyKey(scheduleID uuid.UUID, scheduledAt time.Time) string {
	data := fmt.Sprintf("%s:%d", scheduleID.String(), scheduledAt.Unix())
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// FireEvent is emitted by the scheduler loop when a schedule's trigger
// fires; the execution subsystem consumes it.
type FireEvent struct {
	ExecutionID uuid.UUID
	ScheduleID  uuid.UUID
	TriggerID   uuid.UUID

	ScheduledAt    time.Time
	FiredAt        time.Time
	IdempotencyKey string

	CreatedAt time.Time
}
