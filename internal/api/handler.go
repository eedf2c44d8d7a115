// Package api exposes the HTTP management surface: schedule CRUD,
// pause/resume, manual fire and execution history.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/easy-trigger/internal/domain"
)

// Pagination defaults and limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

type Store interface {
	CreateSchedule(ctx context.Context, sched *domain.Schedule) error
	ListSchedules(ctx context.Context, limit, offset int) ([]*domain.Schedule, error)
	GetScheduleByID(ctx context.Context, scheduleID uuid.UUID) (*domain.Schedule, error)
	DeleteSchedule(ctx context.Context, scheduleID uuid.UUID) error
	UpdateActiveStatus(ctx context.Context, scheduleID uuid.UUID, active bool) error
	ListExecutions(ctx context.Context, scheduleID uuid.UUID, limit, offset int) ([]domain.Execution, error)
}

// Evaluator is the trigger-engine surface the API consumes: full validation
// on create, and the initial next-execution computation.
type Evaluator interface {
	ValidateTrigger(t *domain.Trigger) error
	NextExecution(t *domain.Trigger, lastExecutionUTC *time.Time) (*time.Time, error)
}

// Firer emits an execution for a schedule on demand (manual triggers and
// forced runs). The scheduler loop provides it.
type Firer interface {
	FireNow(ctx context.Context, sched *domain.Schedule) error
}

// HealthChecker provides database health status for the /health endpoint.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// MetricsSink records API metrics. Implementations must not block.
type MetricsSink interface {
	ValidationFailed(reason string)
}

type Handler struct {
	store     Store
	evaluator Evaluator
	firer     Firer         // optional, nil = manual fire disabled
	db        HealthChecker // optional, nil = shallow health only
	metrics   MetricsSink   // optional, nil = disabled
}

func NewHandler(store Store, evaluator Evaluator) *Handler {
	return &Handler{store: store, evaluator: evaluator}
}

// WithMetrics attaches a metrics sink to the handler.
func (h *Handler) WithMetrics(sink MetricsSink) *Handler {
	h.metrics = sink
	return h
}

// WithFirer enables the manual fire endpoint.
func (h *Handler) WithFirer(firer Firer) *Handler {
	h.firer = firer
	return h
}

// WithHealthChecker sets the database health checker for verbose /health responses.
func (h *Handler) WithHealthChecker(db HealthChecker) *Handler {
	h.db = db
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/health" && r.Method == http.MethodGet:
		h.health(w, r)

	case path == "/schedules" && r.Method == http.MethodPost:
		h.createSchedule(w, r)

	case path == "/schedules" && r.Method == http.MethodGet:
		h.listSchedules(w, r)

	case strings.HasSuffix(path, "/executions") && r.Method == http.MethodGet:
		h.listExecutions(w, r)

	case strings.HasSuffix(path, "/pause") && r.Method == http.MethodPost:
		h.setActive(w, r, "pause", false)

	case strings.HasSuffix(path, "/resume") && r.Method == http.MethodPost:
		h.setActive(w, r, "resume", true)

	case strings.HasSuffix(path, "/fire") && r.Method == http.MethodPost:
		h.fireSchedule(w, r)

	case strings.HasPrefix(path, "/schedules/") && r.Method == http.MethodDelete:
		h.deleteSchedule(w, r)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || h.db == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.Components["database"] = "unhealthy: " + err.Error()
	} else {
		resp.Components["database"] = "healthy"
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

func (h *Handler) createSchedule(w http.ResponseWriter, r *http.Request) {
	// Limit request body size to prevent DoS via large payloads
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := validateCreateSchedule(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg, err := domain.ConfigFromMap(domain.TriggerKind(req.Trigger.Kind), req.Trigger.Config)
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	trig, err := domain.NewTrigger(req.Name, cfg)
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	// Full kind-specific validation: cron syntax, strict timezone
	// resolution, ranges, never-fires detection.
	if err := h.evaluator.ValidateTrigger(trig); err != nil {
		h.writeValidationError(w, err)
		return
	}

	sched, err := domain.NewSchedule(trig, domain.ProcessDescriptor{
		Type:   req.Process.Type,
		Config: req.Process.Config,
	})
	if err != nil {
		h.writeValidationError(w, err)
		return
	}
	sched.Description = req.Description
	sched.Metadata = req.Metadata
	sched.Analytics = parseAnalyticsConfig(req.Analytics)

	next, err := h.evaluator.NextExecution(trig, nil)
	if err != nil {
		h.writeValidationError(w, err)
		return
	}
	sched.UpdateNextExecution(next)

	if err := h.store.CreateSchedule(r.Context(), sched); err != nil {
		log.Printf("api: create schedule error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create schedule")
		return
	}

	writeJSON(w, http.StatusCreated, scheduleResponse(sched))
}

func (h *Handler) listSchedules(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	schedules, err := h.store.ListSchedules(r.Context(), limit, offset)
	if err != nil {
		log.Printf("api: list schedules error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list schedules")
		return
	}

	resp := ListSchedulesResponse{Schedules: make([]ScheduleResponse, len(schedules))}
	for i, sched := range schedules {
		resp.Schedules[i] = scheduleResponse(sched)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listExecutions(w http.ResponseWriter, r *http.Request) {
	scheduleID, ok := scheduleIDFromPath(w, r.URL.Path, "executions")
	if !ok {
		return
	}

	limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	executions, err := h.store.ListExecutions(r.Context(), scheduleID, limit, offset)
	if err != nil {
		log.Printf("api: list executions error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}

	resp := ListExecutionsResponse{Executions: make([]ExecutionResponse, len(executions))}
	for i, exec := range executions {
		resp.Executions[i] = ExecutionResponse{
			ID:          exec.ID.String(),
			ScheduleID:  exec.ScheduleID.String(),
			ScheduledAt: formatTime(exec.ScheduledAt),
			FiredAt:     formatTime(exec.FiredAt),
			Status:      string(exec.Status),
			CreatedAt:   formatTime(exec.CreatedAt),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, action string, active bool) {
	scheduleID, ok := scheduleIDFromPath(w, r.URL.Path, action)
	if !ok {
		return
	}

	if err := h.store.UpdateActiveStatus(r.Context(), scheduleID, active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "schedule not found")
			return
		}
		log.Printf("api: %s schedule error: %v", action, err)
		writeError(w, http.StatusInternalServerError, "failed to "+action+" schedule")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fireSchedule(w http.ResponseWriter, r *http.Request) {
	if h.firer == nil {
		writeError(w, http.StatusNotImplemented, "manual fire not available")
		return
	}

	scheduleID, ok := scheduleIDFromPath(w, r.URL.Path, "fire")
	if !ok {
		return
	}

	sched, err := h.store.GetScheduleByID(r.Context(), scheduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "schedule not found")
			return
		}
		log.Printf("api: fire schedule error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to fire schedule")
		return
	}

	if !sched.Trigger.Enabled {
		writeError(w, http.StatusConflict, "trigger is disabled")
		return
	}

	if err := h.firer.FireNow(r.Context(), sched); err != nil {
		log.Printf("api: fire schedule error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to fire schedule")
		return
	}

	writeJSON(w, http.StatusAccepted, FireResponse{Status: "fired"})
}

func (h *Handler) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	// Extract schedule ID from path: /schedules/{id}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 2 || parts[0] != "schedules" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	scheduleID, err := uuid.Parse(parts[1])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid schedule id")
		return
	}

	if err := h.store.DeleteSchedule(r.Context(), scheduleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "schedule not found")
			return
		}
		log.Printf("api: delete schedule error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to delete schedule")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// scheduleIDFromPath extracts the schedule ID from /schedules/{id}/{action}
// paths, writing the error response itself on failure.
func scheduleIDFromPath(w http.ResponseWriter, path, action string) (uuid.UUID, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[0] != "schedules" || parts[2] != action {
		writeError(w, http.StatusNotFound, "not found")
		return uuid.Nil, false
	}

	scheduleID, err := uuid.Parse(parts[1])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid schedule id")
		return uuid.Nil, false
	}
	return scheduleID, true
}

func scheduleResponse(sched *domain.Schedule) ScheduleResponse {
	return ScheduleResponse{
		ID:              sched.ID.String(),
		Name:            sched.Trigger.Name,
		TriggerKind:     string(sched.Trigger.Kind),
		TriggerConfig:   domain.ConfigToMap(sched.Trigger.Config),
		ProcessType:     sched.Process.Type,
		Active:          sched.Active,
		Enabled:         sched.Trigger.Enabled,
		NextExecutionAt: formatTimePtr(sched.NextExecutionUTC),
		Description:     sched.Description,
		Metadata:        sched.Metadata,
		CreatedAt:       formatTime(sched.CreatedAt),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeValidationError maps trigger validation failures onto 400 responses
// carrying the stable field/reason identifiers.
func (h *Handler) writeValidationError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		if h.metrics != nil {
			h.metrics.ValidationFailed(string(ve.Reason))
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  ve.Message,
			Field:  ve.Field,
			Reason: string(ve.Reason),
		})
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

// parseAnalyticsConfig converts a validated AnalyticsRequest to domain config.
// If analytics is nil, returns a disabled config.
func parseAnalyticsConfig(a *AnalyticsRequest) domain.AnalyticsConfig {
	if a == nil {
		return domain.AnalyticsConfig{}
	}

	cfg := domain.AnalyticsConfig{
		Enabled:   true,
		Type:      domain.AnalyticsTypeCount,
		Window:    time.Minute,
		Retention: 24 * time.Hour,
	}
	if a.Type == "rate" {
		cfg.Type = domain.AnalyticsTypeRate
	}
	if a.WindowSeconds > 0 {
		cfg.Window = time.Duration(a.WindowSeconds) * time.Second
	}
	if a.RetentionSeconds > 0 {
		cfg.Retention = time.Duration(a.RetentionSeconds) * time.Second
	}
	return cfg
}

// parsePagination extracts and validates limit/offset query parameters.
// Returns DefaultLimit if limit is not specified, and 0 for offset if not specified.
// Returns an error if limit exceeds MaxLimit or if values are negative/invalid.
func parsePagination(r *http.Request) (limit, offset int, err error) {
	limit = DefaultLimit
	offset = 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			return 0, 0, err
		}
		if limit < 0 {
			return 0, 0, strconv.ErrRange
		}
		if limit > MaxLimit {
			return 0, 0, &limitExceededError{max: MaxLimit}
		}
		if limit == 0 {
			limit = DefaultLimit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err = strconv.Atoi(offsetStr)
		if err != nil {
			return 0, 0, err
		}
		if offset < 0 {
			return 0, 0, strconv.ErrRange
		}
	}

	return limit, offset, nil
}

type limitExceededError struct {
	max int
}

func (e *limitExceededError) Error() string {
	return "limit exceeds maximum of " + strconv.Itoa(e.max)
}
