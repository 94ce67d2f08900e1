package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tesnim01/remindd/internal/domain"
	"github.com/tesnim01/remindd/internal/testutil"
)

// mockSweepStore returns a canned due list.
type mockSweepStore struct {
	mu       sync.Mutex
	due      []domain.Reminder
	listErr  error
	listened []time.Time
	statuses []domain.ReminderStatus
	limit    int
}

func (m *mockSweepStore) ListDueReminders(ctx context.Context, statuses []domain.ReminderStatus, asOf time.Time, limit int) ([]domain.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listened = append(m.listened, asOf)
	m.statuses = statuses
	m.limit = limit
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.due, nil
}

// mockLifecycle records immediate sends and overdue transitions.
type mockLifecycle struct {
	mu          sync.Mutex
	sent        []uuid.UUID
	overdue     []uuid.UUID
	sendErrs    map[uuid.UUID]error
	overdueErrs map[uuid.UUID]error
}

func newMockLifecycle() *mockLifecycle {
	return &mockLifecycle{
		sendErrs:    make(map[uuid.UUID]error),
		overdueErrs: make(map[uuid.UUID]error),
	}
}

func (m *mockLifecycle) SendImmediate(ctx context.Context, r domain.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, r.ID)
	return m.sendErrs[r.ID]
}

func (m *mockLifecycle) MarkOverdue(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overdue = append(m.overdue, id)
	return m.overdueErrs[id]
}

func dueReminder(status domain.ReminderStatus) domain.Reminder {
	return domain.Reminder{
		ID:       uuid.New(),
		Title:    "water the plants",
		Email:    "dev@example.com",
		RemindAt: time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
		Status:   status,
	}
}

func TestRunOnce_DueReminders_SentAndMarkedOverdue(t *testing.T) {
	r1 := dueReminder(domain.ReminderStatusPending)
	r2 := dueReminder(domain.ReminderStatusScheduled)
	store := &mockSweepStore{due: []domain.Reminder{r1, r2}}
	lc := newMockLifecycle()

	s := New(DefaultConfig(), store, lc)
	s.RunOnce(testutil.TestContext(t))

	if len(lc.sent) != 2 {
		t.Errorf("sent = %d, want 2", len(lc.sent))
	}
	if len(lc.overdue) != 2 {
		t.Errorf("overdue = %d, want 2", len(lc.overdue))
	}
}

func TestRunOnce_QueriesNonTerminalStatusesOnly(t *testing.T) {
	store := &mockSweepStore{}
	s := New(DefaultConfig(), store, newMockLifecycle())
	s.RunOnce(testutil.TestContext(t))

	want := []domain.ReminderStatus{domain.ReminderStatusPending, domain.ReminderStatusScheduled}
	if len(store.statuses) != len(want) {
		t.Fatalf("statuses = %v, want %v", store.statuses, want)
	}
	for i, st := range want {
		if store.statuses[i] != st {
			t.Errorf("statuses[%d] = %q, want %q", i, store.statuses[i], st)
		}
	}
	if store.limit != 100 {
		t.Errorf("limit = %d, want default 100", store.limit)
	}
}

func TestRunOnce_SendFailure_StillMarksOverdue(t *testing.T) {
	r := dueReminder(domain.ReminderStatusPending)
	store := &mockSweepStore{due: []domain.Reminder{r}}
	lc := newMockLifecycle()
	lc.sendErrs[r.ID] = errors.New("engine unavailable")

	s := New(DefaultConfig(), store, lc)
	s.RunOnce(testutil.TestContext(t))

	if len(lc.overdue) != 1 || lc.overdue[0] != r.ID {
		t.Errorf("overdue = %v, want [%s]: delivery failure must not block the transition", lc.overdue, r.ID)
	}
}

func TestRunOnce_OneFailureDoesNotAbortCycle(t *testing.T) {
	r1 := dueReminder(domain.ReminderStatusPending)
	r2 := dueReminder(domain.ReminderStatusPending)
	store := &mockSweepStore{due: []domain.Reminder{r1, r2}}
	lc := newMockLifecycle()
	lc.sendErrs[r1.ID] = errors.New("boom")
	lc.overdueErrs[r1.ID] = errors.New("lost race")

	s := New(DefaultConfig(), store, lc)
	s.RunOnce(testutil.TestContext(t))

	if len(lc.sent) != 2 {
		t.Errorf("sent = %d, want 2: one reminder's failure must not abort the cycle", len(lc.sent))
	}
}

func TestRunOnce_ListError_AbortsCycle(t *testing.T) {
	store := &mockSweepStore{listErr: errors.New("db down")}
	lc := newMockLifecycle()

	s := New(DefaultConfig(), store, lc)
	s.RunOnce(testutil.TestContext(t))

	if len(lc.sent) != 0 {
		t.Errorf("sent = %d, want 0 on list error", len(lc.sent))
	}
}

func TestRun_FirstCycleImmediate(t *testing.T) {
	store := &mockSweepStore{}
	s := New(Config{Interval: time.Hour, BatchSize: 10}, store, newMockLifecycle())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	// The first cycle runs without waiting for the interval.
	deadline := time.After(2 * time.Second)
	for {
		store.mu.Lock()
		n := len(store.listened)
		store.mu.Unlock()
		if n >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first sweep cycle did not run promptly")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancel")
	}
}

// fixedSchedule fires at a constant offset from the query time.
type fixedSchedule struct{ offset time.Duration }

func (f fixedSchedule) Next(after time.Time) time.Time { return after.Add(f.offset) }

func TestRun_CronScheduleDrivesCycles(t *testing.T) {
	store := &mockSweepStore{}
	cfg := Config{Schedule: fixedSchedule{offset: 20 * time.Millisecond}, BatchSize: 10}
	s := New(cfg, store, newMockLifecycle())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		store.mu.Lock()
		n := len(store.listened)
		store.mu.Unlock()
		if n >= 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("cron-driven sweeps did not recur")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

// mockSweepMetrics tracks sink calls.
type mockSweepMetrics struct {
	mu        sync.Mutex
	started   int
	completed int
	swept     int
	backlog   []int
}

func (m *mockSweepMetrics) SweepStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
}

func (m *mockSweepMetrics) SweepCompleted(d time.Duration, swept int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed++
	m.swept += swept
}

func (m *mockSweepMetrics) DueBacklogUpdate(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backlog = append(m.backlog, count)
}

func TestRunOnce_ReportsMetrics(t *testing.T) {
	r := dueReminder(domain.ReminderStatusPending)
	store := &mockSweepStore{due: []domain.Reminder{r}}
	metrics := &mockSweepMetrics{}

	s := New(DefaultConfig(), store, newMockLifecycle()).WithMetrics(metrics)
	s.RunOnce(testutil.TestContext(t))

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if metrics.started != 1 || metrics.completed != 1 {
		t.Errorf("started=%d completed=%d, want 1/1", metrics.started, metrics.completed)
	}
	if metrics.swept != 1 {
		t.Errorf("swept = %d, want 1", metrics.swept)
	}
	if len(metrics.backlog) != 1 || metrics.backlog[0] != 1 {
		t.Errorf("backlog = %v, want [1]", metrics.backlog)
	}
}
