// Package lifecycle owns reminder state transitions.
//
// A reminder enters as pending. At creation time the engine either hands
// it to the delivery engine for future firing (pending -> scheduled) or,
// if the due time already passed, sends immediately and records it as
// late (pending -> overdue). The trigger callback finalizes scheduled
// reminders (scheduled -> triggered); the sweeper forces anything still
// due and unfired through the immediate path (-> overdue).
//
// Correctness does not rely on in-process locking: the store's
// conditional status update (terminal states never regress) and the
// atomic notification upsert are the concurrency guards.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tesnim01/remindd/internal/domain"
	"github.com/tesnim01/remindd/internal/notifier"
)

// ErrReminderNotFound is returned when an operation references a
// reminder id that does not exist (e.g. deleted concurrently).
var ErrReminderNotFound = errors.New("reminder not found")

// ErrStatusTransitionDenied is returned when a status update would
// regress from a terminal state (overdue/triggered). Implementations of
// Store MUST enforce this atomically; it is what makes replayed trigger
// callbacks and overlapping sweeps safe.
var ErrStatusTransitionDenied = errors.New("status transition denied: reminder already in terminal state")

type Store interface {
	GetReminder(ctx context.Context, id uuid.UUID) (domain.Reminder, error)
	// UpdateReminderStatus applies the new status only if the current
	// status is non-terminal, in a single atomic statement. Returns
	// ErrStatusTransitionDenied when the reminder is already terminal and
	// ErrReminderNotFound when the row is missing.
	UpdateReminderStatus(ctx context.Context, id uuid.UUID, status domain.ReminderStatus) error
	// UpsertNotification writes the (reminder, channel) notification row
	// in a single atomic insert-or-update.
	UpsertNotification(ctx context.Context, n domain.Notification) error
	InsertDeliveryAttempt(ctx context.Context, attempt domain.DeliveryAttempt) error
}

type Notifier interface {
	ScheduleAhead(ctx context.Context, r domain.Reminder, callbackURL string) notifier.SendResult
	SendNow(ctx context.Context, r domain.Reminder) notifier.SendResult
}

// EventEmitter receives delivery events for analytics. Best-effort: emit
// failures never affect lifecycle correctness.
type EventEmitter interface {
	Emit(ctx context.Context, event domain.DeliveryEvent) error
}

// MetricsSink records lifecycle metrics. All methods must be
// non-blocking and fire-and-forget.
type MetricsSink interface {
	SendAttemptCompleted(kind string, statusClass string, duration time.Duration)
	ScheduleOutcome(outcome string)
	DeliveryOutcome(outcome string)
	TriggerReceived(replayed bool)
}

// Engine decides dispatch paths and records outcomes idempotently.
type Engine struct {
	store        Store
	notifier     Notifier
	callbackBase string // externally reachable base URL for trigger callbacks
	channel      domain.ChannelType
	emitter      EventEmitter // optional, nil = disabled
	metrics      MetricsSink  // optional, nil = disabled
	clock        func() time.Time
}

func New(store Store, n Notifier, callbackBase string) *Engine {
	return &Engine{
		store:        store,
		notifier:     n,
		callbackBase: strings.TrimRight(callbackBase, "/"),
		channel:      domain.ChannelEmail,
		clock:        time.Now,
	}
}

// WithEvents attaches a delivery event emitter.
func (e *Engine) WithEvents(emitter EventEmitter) *Engine {
	e.emitter = emitter
	return e
}

// WithMetrics attaches a metrics sink.
func (e *Engine) WithMetrics(sink MetricsSink) *Engine {
	e.metrics = sink
	return e
}

// Schedule routes a freshly persisted pending reminder: already due
// reminders go through the immediate-send path and are recorded as
// overdue; future reminders are handed to the delivery engine with a
// trigger callback address.
//
// Schedule never reports failure to its caller. Persistence is the
// source of truth and creation must succeed once the row committed;
// anything that goes wrong here is logged and left for the sweeper,
// which re-checks every pending reminder once it becomes due.
func (e *Engine) Schedule(ctx context.Context, r domain.Reminder) {
	now := e.clock().UTC()

	if r.Due(now) {
		// Missed the window: deliver now, record as late. The overdue
		// transition happens regardless of send outcome; the delivery
		// attempt record keeps the failure auditable.
		if err := e.SendImmediate(ctx, r); err != nil {
			log.Printf("lifecycle: reminder=%s immediate send failed: %v", r.ID, err)
		}
		if err := e.store.UpdateReminderStatus(ctx, r.ID, domain.ReminderStatusOverdue); err != nil {
			log.Printf("lifecycle: reminder=%s mark overdue failed: %v", r.ID, err)
		}
		return
	}

	result := e.notifier.ScheduleAhead(ctx, r, e.TriggerCallbackURL(r.ID))
	e.recordAttempt(ctx, r.ID, domain.SendKindSchedule, result)

	if !result.IsSuccess() {
		// No retry here: the reminder stays pending and the sweeper
		// delivers it once due.
		log.Printf("lifecycle: reminder=%s schedule-ahead failed, leaving pending for sweep: %v", r.ID, result.Failure())
		if e.metrics != nil {
			e.metrics.ScheduleOutcome(domain.OutcomeFailed)
		}
		e.emit(ctx, r.ID, domain.SendKindSchedule, domain.OutcomeFailed)
		return
	}

	if err := e.store.UpdateReminderStatus(ctx, r.ID, domain.ReminderStatusScheduled); err != nil {
		// A sweep or trigger may have raced us into a terminal state;
		// the notification upsert below still converges.
		log.Printf("lifecycle: reminder=%s mark scheduled failed: %v", r.ID, err)
	}
	if err := e.store.UpsertNotification(ctx, domain.Notification{
		ReminderID: r.ID,
		Channel:    e.channel,
		Status:     domain.NotificationStatusScheduled,
		UpdatedAt:  now,
	}); err != nil {
		log.Printf("lifecycle: reminder=%s notification upsert failed: %v", r.ID, err)
		return
	}

	log.Printf("lifecycle: reminder=%s scheduled with delivery engine (due=%s)", r.ID, r.RemindAt.Format(time.RFC3339))
	if e.metrics != nil {
		e.metrics.ScheduleOutcome(domain.OutcomeScheduled)
	}
	e.emit(ctx, r.ID, domain.SendKindSchedule, domain.OutcomeScheduled)
}

// SendImmediate performs one send-now call and, on success, upserts the
// notification to sent. It does not touch the reminder's status; the
// caller decides what a failure means for bookkeeping. Single attempt,
// no retry.
func (e *Engine) SendImmediate(ctx context.Context, r domain.Reminder) error {
	result := e.notifier.SendNow(ctx, r)
	e.recordAttempt(ctx, r.ID, domain.SendKindImmediate, result)

	if !result.IsSuccess() {
		if e.metrics != nil {
			e.metrics.DeliveryOutcome(domain.OutcomeFailed)
		}
		e.emit(ctx, r.ID, domain.SendKindImmediate, domain.OutcomeFailed)
		return fmt.Errorf("send now: %w", result.Failure())
	}

	sentAt := e.clock().UTC()
	if err := e.store.UpsertNotification(ctx, domain.Notification{
		ReminderID: r.ID,
		Channel:    e.channel,
		Status:     domain.NotificationStatusSent,
		SentAt:     &sentAt,
		UpdatedAt:  sentAt,
	}); err != nil {
		return fmt.Errorf("upsert notification: %w", err)
	}

	log.Printf("lifecycle: reminder=%s immediate notification sent", r.ID)
	if e.metrics != nil {
		e.metrics.DeliveryOutcome(domain.OutcomeDelivered)
	}
	e.emit(ctx, r.ID, domain.SendKindImmediate, domain.OutcomeDelivered)
	return nil
}

// MarkOverdue forces the terminal overdue state. Used by the sweeper
// after an immediate-send attempt, whatever its outcome, so that due
// reminders leave the non-terminal backlog exactly once.
func (e *Engine) MarkOverdue(ctx context.Context, id uuid.UUID) error {
	return e.store.UpdateReminderStatus(ctx, id, domain.ReminderStatusOverdue)
}

// Trigger finalizes a reminder the delivery engine confirmed firing.
// Idempotent: replayed callbacks converge on the same end state. A
// callback that lost the race against a sweep (reminder already
// overdue) is treated as a no-op for status but still records the send.
func (e *Engine) Trigger(ctx context.Context, id uuid.UUID) error {
	replayed := false
	if err := e.store.UpdateReminderStatus(ctx, id, domain.ReminderStatusTriggered); err != nil {
		if !errors.Is(err, ErrStatusTransitionDenied) {
			return fmt.Errorf("mark triggered: %w", err)
		}
		replayed = true
	}

	sentAt := e.clock().UTC()
	if err := e.store.UpsertNotification(ctx, domain.Notification{
		ReminderID: id,
		Channel:    e.channel,
		Status:     domain.NotificationStatusSent,
		SentAt:     &sentAt,
		UpdatedAt:  sentAt,
	}); err != nil {
		return fmt.Errorf("upsert notification: %w", err)
	}

	log.Printf("lifecycle: reminder=%s triggered (replayed=%v)", id, replayed)
	if e.metrics != nil {
		e.metrics.TriggerReceived(replayed)
	}
	e.emit(ctx, id, domain.SendKindSchedule, domain.OutcomeDelivered)
	return nil
}

// TriggerCallbackURL builds the callback address handed to the delivery
// engine in schedule-ahead requests.
func (e *Engine) TriggerCallbackURL(id uuid.UUID) string {
	return fmt.Sprintf("%s/api/reminders/%s/trigger", e.callbackBase, id)
}

// recordAttempt persists the audit row for one delivery engine call.
// Best-effort: a failed insert is logged, never propagated.
func (e *Engine) recordAttempt(ctx context.Context, reminderID uuid.UUID, kind domain.SendKind, result notifier.SendResult) {
	finished := e.clock().UTC()
	attempt := domain.DeliveryAttempt{
		ID:         uuid.New(),
		ReminderID: reminderID,
		Kind:       kind,
		StatusCode: result.StatusCode,
		StartedAt:  finished.Add(-result.Duration),
		FinishedAt: finished,
	}
	if result.Error != nil {
		attempt.Error = result.Error.Error()
	} else if result.Body != "" {
		attempt.Error = result.Body
	}

	if err := e.store.InsertDeliveryAttempt(ctx, attempt); err != nil {
		log.Printf("lifecycle: reminder=%s failed to record delivery attempt: %v", reminderID, err)
	}

	if e.metrics != nil {
		e.metrics.SendAttemptCompleted(string(kind), classifyStatus(result), result.Duration)
	}
}

func (e *Engine) emit(ctx context.Context, id uuid.UUID, kind domain.SendKind, outcome string) {
	if e.emitter == nil {
		return
	}
	event := domain.DeliveryEvent{
		ReminderID: id,
		Kind:       kind,
		Outcome:    outcome,
		At:         e.clock().UTC(),
	}
	if err := e.emitter.Emit(ctx, event); err != nil {
		log.Printf("lifecycle: reminder=%s event emit failed: %v", id, err)
	}
}

// classifyStatus maps a send result to a bounded-cardinality status
// class for metrics: 2xx, 4xx, 5xx, timeout, connection_error, other_error.
func classifyStatus(result notifier.SendResult) string {
	if result.Error != nil {
		msg := strings.ToLower(result.Error.Error())
		switch {
		case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
			return "timeout"
		case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") ||
			strings.Contains(msg, "network is unreachable") || strings.Contains(msg, "dial"):
			return "connection_error"
		default:
			return "other_error"
		}
	}

	switch {
	case result.StatusCode >= 200 && result.StatusCode < 300:
		return "2xx"
	case result.StatusCode >= 400 && result.StatusCode < 500:
		return "4xx"
	case result.StatusCode >= 500:
		return "5xx"
	default:
		return "other_error"
	}
}
