package api

import (
	"time"

	"github.com/tesnim01/remindd/internal/domain"
)

type CreateReminderRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	ReminderTime string `json:"reminder_time"` // RFC 3339, UTC
	Email        string `json:"email"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type ReminderResponse struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	ReminderTime string `json:"reminder_time"`
	Email        string `json:"email"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`

	NotificationStatus string `json:"notification_status,omitempty"`
	SentAt             string `json:"sent_at,omitempty"`
}

type ListRemindersResponse struct {
	Reminders []ReminderResponse `json:"reminders"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// ReminderWithNotification is a reminder joined with its notification
// row, as produced by the store's list query.
type ReminderWithNotification struct {
	Reminder           domain.Reminder
	NotificationStatus string
	SentAt             *time.Time
}

func reminderResponse(r domain.Reminder) ReminderResponse {
	return ReminderResponse{
		ID:           r.ID.String(),
		Title:        r.Title,
		Description:  r.Description,
		ReminderTime: formatTime(r.RemindAt),
		Email:        r.Email,
		Status:       string(r.Status),
		CreatedAt:    formatTime(r.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
