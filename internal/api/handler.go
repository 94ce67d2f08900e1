package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tesnim01/remindd/internal/domain"
	"github.com/tesnim01/remindd/internal/lifecycle"
)

// Pagination defaults and limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

type Store interface {
	InsertReminder(ctx context.Context, r domain.Reminder) error
	GetReminder(ctx context.Context, id uuid.UUID) (domain.Reminder, error)
	UpdateReminderStatus(ctx context.Context, id uuid.UUID, status domain.ReminderStatus) error
	ListReminders(ctx context.Context, limit, offset int) ([]ReminderWithNotification, error)
	DeleteReminder(ctx context.Context, id uuid.UUID) error
}

// Lifecycle is the subset of the lifecycle engine the API drives.
type Lifecycle interface {
	Schedule(ctx context.Context, r domain.Reminder)
	SendImmediate(ctx context.Context, r domain.Reminder) error
	Trigger(ctx context.Context, id uuid.UUID) error
}

// HealthChecker provides database health status for the /health endpoint.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	store     Store
	lifecycle Lifecycle
	db        HealthChecker
	clock     func() time.Time
}

func NewHandler(store Store, lc Lifecycle) *Handler {
	return &Handler{store: store, lifecycle: lc, clock: time.Now}
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

	case path == "/api/reminders" && r.Method == http.MethodPost:
		h.createReminder(w, r)

	case path == "/api/reminders" && r.Method == http.MethodGet:
		h.listReminders(w, r)

	case strings.HasSuffix(path, "/status") && r.Method == http.MethodPut:
		h.updateStatus(w, r)

	case strings.HasSuffix(path, "/notify") && r.Method == http.MethodPost:
		h.notify(w, r)

	case strings.HasSuffix(path, "/trigger") && r.Method == http.MethodPost:
		h.trigger(w, r)

	case strings.HasPrefix(path, "/api/reminders/") && r.Method == http.MethodDelete:
		h.deleteReminder(w, r)

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

func (h *Handler) createReminder(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req CreateReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	remindAt, err := validateCreateReminder(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := h.clock().UTC()
	rem := domain.Reminder{
		ID:          uuid.New(),
		Title:       req.Title,
		Description: req.Description,
		RemindAt:    remindAt,
		Email:       req.Email,
		Status:      domain.ReminderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.store.InsertReminder(r.Context(), rem); err != nil {
		log.Printf("api: create reminder error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create reminder")
		return
	}

	// Scheduling is best-effort: the row is persisted, so the response
	// succeeds even if the delivery engine is down. Schedule logs its own
	// failures and the sweeper recovers anything left pending.
	h.lifecycle.Schedule(r.Context(), rem)

	// Re-read so the response reflects the post-schedule status (an
	// already due reminder comes back overdue, not pending).
	if cur, err := h.store.GetReminder(r.Context(), rem.ID); err == nil {
		rem = cur
	}

	writeJSON(w, http.StatusCreated, reminderResponse(rem))
}

func (h *Handler) listReminders(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reminders, err := h.store.ListReminders(r.Context(), limit, offset)
	if err != nil {
		log.Printf("api: list reminders error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list reminders")
		return
	}

	resp := ListRemindersResponse{Reminders: make([]ReminderResponse, len(reminders))}
	for i, rn := range reminders {
		item := reminderResponse(rn.Reminder)
		item.NotificationStatus = rn.NotificationStatus
		if rn.SentAt != nil {
			item.SentAt = formatTime(*rn.SentAt)
		}
		resp.Reminders[i] = item
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	// Path: /api/reminders/{id}/status
	id, ok := reminderID(w, r, "status")
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	status, err := validateStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.UpdateReminderStatus(r.Context(), id, status); err != nil {
		switch {
		case errors.Is(err, lifecycle.ErrReminderNotFound):
			writeError(w, http.StatusNotFound, "reminder not found")
		case errors.Is(err, lifecycle.ErrStatusTransitionDenied):
			writeError(w, http.StatusConflict, "reminder already in terminal state")
		default:
			log.Printf("api: update status error: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to update reminder")
		}
		return
	}

	rem, err := h.store.GetReminder(r.Context(), id)
	if err != nil {
		log.Printf("api: get reminder error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load reminder")
		return
	}

	writeJSON(w, http.StatusOK, reminderResponse(rem))
}

// notify sends an immediate notification for a reminder on operator
// request, without touching its status.
func (h *Handler) notify(w http.ResponseWriter, r *http.Request) {
	// Path: /api/reminders/{id}/notify
	id, ok := reminderID(w, r, "notify")
	if !ok {
		return
	}

	rem, err := h.store.GetReminder(r.Context(), id)
	if err != nil {
		if errors.Is(err, lifecycle.ErrReminderNotFound) {
			writeError(w, http.StatusNotFound, "reminder not found")
			return
		}
		log.Printf("api: get reminder error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load reminder")
		return
	}

	if err := h.lifecycle.SendImmediate(r.Context(), rem); err != nil {
		log.Printf("api: manual notify error: %v", err)
		writeError(w, http.StatusBadGateway, "failed to send notification")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "notification sent"})
}

// trigger is the callback endpoint handed to the delivery engine: it
// confirms a scheduled reminder fired. Safe to call more than once.
func (h *Handler) trigger(w http.ResponseWriter, r *http.Request) {
	// Path: /api/reminders/{id}/trigger
	id, ok := reminderID(w, r, "trigger")
	if !ok {
		return
	}

	if err := h.lifecycle.Trigger(r.Context(), id); err != nil {
		if errors.Is(err, lifecycle.ErrReminderNotFound) {
			writeError(w, http.StatusNotFound, "reminder not found")
			return
		}
		log.Printf("api: trigger error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to trigger reminder")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "reminder triggered"})
}

func (h *Handler) deleteReminder(w http.ResponseWriter, r *http.Request) {
	// Path: /api/reminders/{id}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[0] != "api" || parts[1] != "reminders" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	id, err := uuid.Parse(parts[2])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid reminder id")
		return
	}

	if err := h.store.DeleteReminder(r.Context(), id); err != nil {
		if errors.Is(err, lifecycle.ErrReminderNotFound) {
			writeError(w, http.StatusNotFound, "reminder not found")
			return
		}
		log.Printf("api: delete reminder error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to delete reminder")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "reminder deleted"})
}

// reminderID extracts the reminder id from /api/reminders/{id}/{action}
// paths, writing the error response on failure.
func reminderID(w http.ResponseWriter, r *http.Request, action string) (uuid.UUID, bool) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 4 || parts[0] != "api" || parts[1] != "reminders" || parts[3] != action {
		writeError(w, http.StatusNotFound, "not found")
		return uuid.UUID{}, false
	}

	id, err := uuid.Parse(parts[2])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid reminder id")
		return uuid.UUID{}, false
	}

	return id, true
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

// parsePagination extracts and validates limit/offset query parameters.
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
