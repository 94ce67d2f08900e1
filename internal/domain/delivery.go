package domain

import (
	"time"

	"github.com/google/uuid"
)

type SendKind string

const (
	// SendKindSchedule is a schedule-ahead request handing the reminder to
	// the delivery engine for future firing.
	SendKindSchedule SendKind = "schedule"
	// SendKindImmediate is a send-now request for an already due reminder.
	SendKindImmediate SendKind = "immediate"
)

// DeliveryAttempt records a single call to the delivery engine. Attempts
// are the audit trail that keeps delivery outcome distinguishable from
// status bookkeeping: a reminder forced to overdue after a failed send
// still shows the failure here.
type DeliveryAttempt struct {
	ID         uuid.UUID
	ReminderID uuid.UUID
	Kind       SendKind

	StatusCode int
	Error      string

	StartedAt  time.Time
	FinishedAt time.Time
}

// Delivery event outcomes.
const (
	OutcomeScheduled = "scheduled"
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
)

// DeliveryEvent is emitted by the lifecycle engine after each delivery
// decision. Consumers (analytics) treat it as fire-and-forget.
type DeliveryEvent struct {
	ReminderID uuid.UUID
	Kind       SendKind
	Outcome    string

	At time.Time
}
