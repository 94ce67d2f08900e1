package domain

import (
	"time"

	"github.com/google/uuid"
)

type NotificationStatus string

const (
	NotificationStatusScheduled NotificationStatus = "scheduled"
	NotificationStatusSent      NotificationStatus = "sent"
)

type ChannelType string

const ChannelEmail ChannelType = "email"

// Notification is the durable record of delivery state for one reminder
// on one channel. At most one row exists per (reminder, channel); every
// write is an upsert, which is what makes repeated sweep passes, trigger
// replays and network retries safe.
type Notification struct {
	ReminderID uuid.UUID
	Channel    ChannelType

	Status NotificationStatus
	SentAt *time.Time

	UpdatedAt time.Time
}
