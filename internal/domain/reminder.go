package domain

import (
	"time"

	"github.com/google/uuid"
)

type ReminderStatus string

const (
	// ReminderStatusPending means the reminder is persisted but no
	// schedule-ahead request has been accepted by the delivery engine yet.
	ReminderStatusPending ReminderStatus = "pending"
	// ReminderStatusScheduled means the delivery engine accepted a
	// schedule-ahead request and will call back at the due time.
	ReminderStatusScheduled ReminderStatus = "scheduled"
	// ReminderStatusOverdue is terminal: the due time passed without a
	// confirmed fire and an immediate send was attempted.
	ReminderStatusOverdue ReminderStatus = "overdue"
	// ReminderStatusTriggered is terminal: the delivery engine confirmed
	// the scheduled reminder fired.
	ReminderStatusTriggered ReminderStatus = "triggered"
)

// Terminal reports whether the status permits no further transitions.
func (s ReminderStatus) Terminal() bool {
	return s == ReminderStatusOverdue || s == ReminderStatusTriggered
}

// Valid reports whether s is a known reminder status.
func (s ReminderStatus) Valid() bool {
	switch s {
	case ReminderStatusPending, ReminderStatusScheduled, ReminderStatusOverdue, ReminderStatusTriggered:
		return true
	}
	return false
}

// Reminder is a user request to be notified at a specific instant.
// RemindAt is immutable after creation; Status only moves forward.
type Reminder struct {
	ID uuid.UUID

	Title       string
	Description string
	RemindAt    time.Time // UTC
	Email       string

	Status ReminderStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Due reports whether the reminder's target time has been reached at now.
// A reminder due exactly at now counts as due.
func (r Reminder) Due(now time.Time) bool {
	return !r.RemindAt.After(now)
}
