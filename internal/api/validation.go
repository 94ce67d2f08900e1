package api

import (
	"fmt"
	"net/mail"
	"time"

	"github.com/tesnim01/remindd/internal/domain"
)

const maxTitleLength = 500

// validateCreateReminder checks the request and returns the parsed
// reminder time in UTC.
func validateCreateReminder(req CreateReminderRequest) (time.Time, error) {
	if req.Title == "" {
		return time.Time{}, fmt.Errorf("title is required")
	}
	if len(req.Title) > maxTitleLength {
		return time.Time{}, fmt.Errorf("title exceeds %d characters", maxTitleLength)
	}

	if req.Email == "" {
		return time.Time{}, fmt.Errorf("email is required")
	}
	if err := validateEmail(req.Email); err != nil {
		return time.Time{}, fmt.Errorf("invalid email: %w", err)
	}

	if req.ReminderTime == "" {
		return time.Time{}, fmt.Errorf("reminder_time is required")
	}
	t, err := time.Parse(time.RFC3339, req.ReminderTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid reminder_time: %w", err)
	}

	return t.UTC(), nil
}

func validateEmail(address string) error {
	addr, err := mail.ParseAddress(address)
	if err != nil {
		return err
	}
	// Reject display-name forms; the store keeps the bare address.
	if addr.Address != address {
		return fmt.Errorf("must be a bare address")
	}
	return nil
}

func validateStatus(status string) (domain.ReminderStatus, error) {
	s := domain.ReminderStatus(status)
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", status)
	}
	return s, nil
}
