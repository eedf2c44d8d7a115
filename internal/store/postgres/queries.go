package postgres

const scheduleColumns = `
    s.id, s.process_type, s.process_config, s.active, s.next_execution_at,
    s.description, s.metadata,
    s.analytics_enabled, s.analytics_type, s.analytics_window_ms, s.analytics_retention_ms,
    s.created_at, s.updated_at,
    t.id, t.name, t.kind, t.config, t.enabled, t.metadata, t.created_at, t.modified_at`

const queryGetActiveSchedules = `
SELECT` + scheduleColumns + `
FROM schedules s
JOIN triggers t ON s.trigger_id = t.id
WHERE s.active = true
ORDER BY s.id
`

const queryGetScheduleByID = `
SELECT` + scheduleColumns + `
FROM schedules s
JOIN triggers t ON s.trigger_id = t.id
WHERE s.id = $1
`

const queryListSchedules = `
SELECT` + scheduleColumns + `
FROM schedules s
JOIN triggers t ON s.trigger_id = t.id
ORDER BY s.created_at DESC
LIMIT $1 OFFSET $2
`

const queryInsertTrigger = `
INSERT INTO triggers (id, name, kind, config, enabled, metadata, created_at, modified_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

const queryInsertSchedule = `
INSERT INTO schedules (
    id, trigger_id, process_type, process_config, active, next_execution_at,
    description, metadata,
    analytics_enabled, analytics_type, analytics_window_ms, analytics_retention_ms,
    created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
`

const queryUpdateNextExecution = `
UPDATE schedules
SET next_execution_at = $2, updated_at = NOW()
WHERE id = $1
`

const queryUpdateActiveStatus = `
UPDATE schedules
SET active = $2, updated_at = NOW()
WHERE id = $1
RETURNING id
`

const queryDeleteSchedule = `
WITH deleted_attempts AS (
    DELETE FROM delivery_attempts
    WHERE execution_id IN (SELECT id FROM executions WHERE schedule_id = $1)
),
deleted_executions AS (
    DELETE FROM executions WHERE schedule_id = $1
),
deleted_schedule AS (
    DELETE FROM schedules WHERE id = $1
    RETURNING trigger_id
)
DELETE FROM triggers WHERE id IN (SELECT trigger_id FROM deleted_schedule)
RETURNING id`

const queryInsertExecution = `
INSERT INTO executions (id, schedule_id, scheduled_at, fired_at, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`

const queryGetLastFireTime = `
SELECT fired_at
FROM executions
WHERE schedule_id = $1
ORDER BY fired_at DESC
LIMIT 1
`

const queryListExecutions = `
SELECT id, schedule_id, scheduled_at, fired_at, status, created_at
FROM executions
WHERE schedule_id = $1
ORDER BY scheduled_at DESC
LIMIT $2 OFFSET $3
`

const queryGetExecutionStatus = `
SELECT status FROM executions WHERE id = $1
`

const queryUpdateExecutionStatus = `
UPDATE executions
SET status = $1
WHERE id = $2
  AND status NOT IN ('delivered', 'failed')
`

const queryInsertDeliveryAttempt = `
INSERT INTO delivery_attempts (id, execution_id, attempt, status_code, error, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

const queryGetOrphanedExecutions = `
SELECT e.id, e.schedule_id, e.scheduled_at, e.fired_at, e.status, e.created_at, s.trigger_id
FROM executions e
JOIN schedules s ON s.id = e.schedule_id
WHERE e.status = 'emitted'
  AND e.created_at < $1
ORDER BY e.created_at ASC
LIMIT $2
`
