package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tesnim01/remindd/internal/domain"
	"github.com/tesnim01/remindd/internal/lifecycle"
)

// mockStore backs the handler with an in-memory reminder map.
type mockStore struct {
	mu        sync.Mutex
	reminders map[uuid.UUID]domain.Reminder
	listed    []ReminderWithNotification

	insertErr error
	listErr   error
}

func newMockStore() *mockStore {
	return &mockStore{reminders: make(map[uuid.UUID]domain.Reminder)}
}

func (m *mockStore) InsertReminder(ctx context.Context, r domain.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.reminders[r.ID] = r
	return nil
}

func (m *mockStore) GetReminder(ctx context.Context, id uuid.UUID) (domain.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok {
		return domain.Reminder{}, lifecycle.ErrReminderNotFound
	}
	return r, nil
}

func (m *mockStore) UpdateReminderStatus(ctx context.Context, id uuid.UUID, status domain.ReminderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok {
		return lifecycle.ErrReminderNotFound
	}
	if r.Status.Terminal() {
		return lifecycle.ErrStatusTransitionDenied
	}
	r.Status = status
	m.reminders[id] = r
	return nil
}

func (m *mockStore) ListReminders(ctx context.Context, limit, offset int) ([]ReminderWithNotification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.listed, nil
}

func (m *mockStore) DeleteReminder(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reminders[id]; !ok {
		return lifecycle.ErrReminderNotFound
	}
	delete(m.reminders, id)
	return nil
}

// mockLifecycle records lifecycle calls. scheduleFn lets a test emulate
// the immediate-send path flipping a due reminder to overdue.
type mockLifecycle struct {
	mu           sync.Mutex
	scheduled    []domain.Reminder
	sent         []uuid.UUID
	triggered    []uuid.UUID
	scheduleFn   func(r domain.Reminder)
	sendErr      error
	triggerErr   error
	triggerCalls int
}

func (m *mockLifecycle) Schedule(ctx context.Context, r domain.Reminder) {
	m.mu.Lock()
	fn := m.scheduleFn
	m.scheduled = append(m.scheduled, r)
	m.mu.Unlock()
	if fn != nil {
		fn(r)
	}
}

func (m *mockLifecycle) SendImmediate(ctx context.Context, r domain.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, r.ID)
	return m.sendErr
}

func (m *mockLifecycle) Trigger(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggerCalls++
	m.triggered = append(m.triggered, id)
	return m.triggerErr
}

func newTestHandler() (*Handler, *mockStore, *mockLifecycle) {
	store := newMockStore()
	lc := &mockLifecycle{}
	h := NewHandler(store, lc)
	h.clock = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return h, store, lc
}

func doRequest(h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestCreateReminder_FutureTime_Created(t *testing.T) {
	h, store, lc := newTestHandler()

	w := doRequest(h, http.MethodPost, "/api/reminders", CreateReminderRequest{
		Title:        "dentist",
		Email:        "dev@example.com",
		ReminderTime: "2026-06-01T10:00:00Z",
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	var resp ReminderResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Status != string(domain.ReminderStatusPending) {
		t.Errorf("status = %q, want pending", resp.Status)
	}
	if resp.ReminderTime != "2026-06-01T10:00:00Z" {
		t.Errorf("reminder_time = %q, want RFC 3339 UTC echo", resp.ReminderTime)
	}

	if len(store.reminders) != 1 {
		t.Errorf("stored reminders = %d, want 1", len(store.reminders))
	}
	if len(lc.scheduled) != 1 {
		t.Errorf("schedule calls = %d, want 1", len(lc.scheduled))
	}
}

func TestCreateReminder_PastTime_ResponseReflectsOverdue(t *testing.T) {
	h, store, lc := newTestHandler()

	// Emulate the lifecycle engine's due path: send now, mark overdue.
	lc.scheduleFn = func(r domain.Reminder) {
		store.mu.Lock()
		defer store.mu.Unlock()
		r.Status = domain.ReminderStatusOverdue
		store.reminders[r.ID] = r
	}

	w := doRequest(h, http.MethodPost, "/api/reminders", CreateReminderRequest{
		Title:        "already late",
		Email:        "dev@example.com",
		ReminderTime: "2026-01-01T00:00:00Z",
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	var resp ReminderResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != string(domain.ReminderStatusOverdue) {
		t.Errorf("status = %q, want overdue for an already due reminder", resp.Status)
	}
}

func TestCreateReminder_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		req  CreateReminderRequest
	}{
		{"missing title", CreateReminderRequest{Email: "dev@example.com", ReminderTime: "2026-06-01T10:00:00Z"}},
		{"missing email", CreateReminderRequest{Title: "x", ReminderTime: "2026-06-01T10:00:00Z"}},
		{"bad email", CreateReminderRequest{Title: "x", Email: "not-an-email", ReminderTime: "2026-06-01T10:00:00Z"}},
		{"missing time", CreateReminderRequest{Title: "x", Email: "dev@example.com"}},
		{"bad time", CreateReminderRequest{Title: "x", Email: "dev@example.com", ReminderTime: "tomorrow"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, store, _ := newTestHandler()
			w := doRequest(h, http.MethodPost, "/api/reminders", tt.req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			if len(store.reminders) != 0 {
				t.Errorf("nothing should be persisted on validation failure")
			}
		})
	}
}

func TestCreateReminder_InvalidJSON(t *testing.T) {
	h, _, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/api/reminders", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestListReminders_JoinsNotificationState(t *testing.T) {
	h, store, _ := newTestHandler()
	sentAt := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	store.listed = []ReminderWithNotification{
		{
			Reminder: domain.Reminder{
				ID:       uuid.New(),
				Title:    "sent one",
				Email:    "dev@example.com",
				RemindAt: sentAt,
				Status:   domain.ReminderStatusTriggered,
			},
			NotificationStatus: string(domain.NotificationStatusSent),
			SentAt:             &sentAt,
		},
		{
			Reminder: domain.Reminder{
				ID:       uuid.New(),
				Title:    "pending one",
				Email:    "dev@example.com",
				RemindAt: sentAt.Add(time.Hour),
				Status:   domain.ReminderStatusPending,
			},
		},
	}

	w := doRequest(h, http.MethodGet, "/api/reminders", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp ListRemindersResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Reminders) != 2 {
		t.Fatalf("reminders = %d, want 2", len(resp.Reminders))
	}
	if resp.Reminders[0].NotificationStatus != "sent" || resp.Reminders[0].SentAt == "" {
		t.Errorf("first reminder should carry sent notification state")
	}
	if resp.Reminders[1].NotificationStatus != "" || resp.Reminders[1].SentAt != "" {
		t.Errorf("second reminder should have empty notification state")
	}
}

func TestListReminders_PaginationValidation(t *testing.T) {
	h, _, _ := newTestHandler()

	for _, q := range []string{"?limit=-1", "?limit=abc", "?limit=99999", "?offset=-5"} {
		w := doRequest(h, http.MethodGet, "/api/reminders"+q, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("query %q: status = %d, want 400", q, w.Code)
		}
	}
}

func TestUpdateStatus_Valid(t *testing.T) {
	h, store, _ := newTestHandler()
	id := uuid.New()
	store.reminders[id] = domain.Reminder{ID: id, Title: "x", Status: domain.ReminderStatusPending}

	w := doRequest(h, http.MethodPut, "/api/reminders/"+id.String()+"/status",
		UpdateStatusRequest{Status: "scheduled"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if got := store.reminders[id].Status; got != domain.ReminderStatusScheduled {
		t.Errorf("stored status = %q, want scheduled", got)
	}
}

func TestUpdateStatus_TerminalConflict(t *testing.T) {
	h, store, _ := newTestHandler()
	id := uuid.New()
	store.reminders[id] = domain.Reminder{ID: id, Title: "x", Status: domain.ReminderStatusTriggered}

	w := doRequest(h, http.MethodPut, "/api/reminders/"+id.String()+"/status",
		UpdateStatusRequest{Status: "pending"})
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409 for terminal reminder", w.Code)
	}
}

func TestUpdateStatus_UnknownStatus(t *testing.T) {
	h, store, _ := newTestHandler()
	id := uuid.New()
	store.reminders[id] = domain.Reminder{ID: id, Status: domain.ReminderStatusPending}

	w := doRequest(h, http.MethodPut, "/api/reminders/"+id.String()+"/status",
		UpdateStatusRequest{Status: "snoozed"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for unknown status", w.Code)
	}
}

func TestUpdateStatus_NotFound(t *testing.T) {
	h, _, _ := newTestHandler()
	w := doRequest(h, http.MethodPut, "/api/reminders/"+uuid.NewString()+"/status",
		UpdateStatusRequest{Status: "pending"})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestNotify_SendsImmediately(t *testing.T) {
	h, store, lc := newTestHandler()
	id := uuid.New()
	store.reminders[id] = domain.Reminder{ID: id, Title: "x", Status: domain.ReminderStatusPending}

	w := doRequest(h, http.MethodPost, "/api/reminders/"+id.String()+"/notify", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(lc.sent) != 1 || lc.sent[0] != id {
		t.Errorf("sent = %v, want [%s]", lc.sent, id)
	}
}

func TestNotify_DeliveryFailure_BadGateway(t *testing.T) {
	h, store, lc := newTestHandler()
	id := uuid.New()
	store.reminders[id] = domain.Reminder{ID: id, Status: domain.ReminderStatusPending}
	lc.sendErr = errors.New("engine down")

	w := doRequest(h, http.MethodPost, "/api/reminders/"+id.String()+"/notify", nil)
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

func TestTrigger_Callback(t *testing.T) {
	h, _, lc := newTestHandler()
	id := uuid.New()

	w := doRequest(h, http.MethodPost, "/api/reminders/"+id.String()+"/trigger", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if lc.triggerCalls != 1 {
		t.Errorf("trigger calls = %d, want 1", lc.triggerCalls)
	}
}

func TestTrigger_NotFound(t *testing.T) {
	h, _, lc := newTestHandler()
	lc.triggerErr = lifecycle.ErrReminderNotFound

	w := doRequest(h, http.MethodPost, "/api/reminders/"+uuid.NewString()+"/trigger", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestTrigger_InvalidID(t *testing.T) {
	h, _, _ := newTestHandler()
	w := doRequest(h, http.MethodPost, "/api/reminders/not-a-uuid/trigger", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestDeleteReminder(t *testing.T) {
	h, store, _ := newTestHandler()
	id := uuid.New()
	store.reminders[id] = domain.Reminder{ID: id, Status: domain.ReminderStatusPending}

	w := doRequest(h, http.MethodDelete, "/api/reminders/"+id.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if _, ok := store.reminders[id]; ok {
		t.Error("reminder should be deleted")
	}

	w = doRequest(h, http.MethodDelete, "/api/reminders/"+id.String(), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d, want 404", w.Code)
	}
}

func TestHealth_Basic(t *testing.T) {
	h, _, _ := newTestHandler()
	w := doRequest(h, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp HealthResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
}

// mockHealthChecker simulates the database ping.
type mockHealthChecker struct{ err error }

func (m *mockHealthChecker) PingContext(ctx context.Context) error { return m.err }

func TestHealth_VerboseDegraded(t *testing.T) {
	h, _, _ := newTestHandler()
	h.WithHealthChecker(&mockHealthChecker{err: errors.New("connection refused")})

	w := doRequest(h, http.MethodGet, "/health?verbose=true", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	var resp HealthResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
}

func TestUnknownRoute_NotFound(t *testing.T) {
	h, _, _ := newTestHandler()
	w := doRequest(h, http.MethodGet, "/api/unknown", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
