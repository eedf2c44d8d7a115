package api

import "time"

type CreateScheduleRequest struct {
	Name        string            `json:"name"`
	Trigger     TriggerRequest    `json:"trigger"`
	Process     ProcessRequest    `json:"process"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`

	Analytics *AnalyticsRequest `json:"analytics,omitempty"`
}

// TriggerRequest carries the trigger kind tag and its untyped configuration
// payload; keys follow the trigger engine's configuration key names
// (CronExpression, TimeZoneId, IntervalMinutes, StartTime, ...).
type TriggerRequest struct {
	Kind   string         `json:"kind"`
	Config map[string]any `json:"config"`
}

// ProcessRequest describes what the schedule runs. The core stores it
// opaquely; the dispatcher interprets it (webhook: url, secret,
// timeout_seconds).
type ProcessRequest struct {
	Type   string         `json:"type"`
	Config map[string]any `json:"config"`
}

// AnalyticsRequest enables per-schedule analytics counters.
// Presence of this object enables analytics; omit to disable.
type AnalyticsRequest struct {
	Type             string `json:"type,omitempty"`              // count (default) or rate
	WindowSeconds    int    `json:"window_seconds,omitempty"`    // default 60
	RetentionSeconds int    `json:"retention_seconds,omitempty"` // default 86400 (24h)
}

type ScheduleResponse struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	TriggerKind     string            `json:"trigger_kind"`
	TriggerConfig   map[string]any    `json:"trigger_config"`
	ProcessType     string            `json:"process_type"`
	Active          bool              `json:"active"`
	Enabled         bool              `json:"enabled"`
	NextExecutionAt *string           `json:"next_execution_at,omitempty"`
	Description     string            `json:"description,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       string            `json:"created_at"`
}

type ExecutionResponse struct {
	ID          string `json:"id"`
	ScheduleID  string `json:"schedule_id"`
	ScheduledAt string `json:"scheduled_at"`
	FiredAt     string `json:"fired_at"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

type ListSchedulesResponse struct {
	Schedules []ScheduleResponse `json:"schedules"`
}

type ListExecutionsResponse struct {
	Executions []ExecutionResponse `json:"executions"`
}

type FireResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
