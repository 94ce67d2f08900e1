package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tesnim01/remindd/internal/api"
	"github.com/tesnim01/remindd/internal/domain"
	"github.com/tesnim01/remindd/internal/lifecycle"
	"github.com/tesnim01/remindd/internal/sweeper"
)

// Store implements the reminder persistence contracts on PostgreSQL.
// No operation spans more than a single statement: each upsert and
// conditional update is independently idempotent, so no multi-statement
// transactions are needed on the core paths.
type Store struct {
	db        *sql.DB
	opTimeout time.Duration
}

// New creates a PostgreSQL store. opTimeout bounds every operation; 0
// disables the per-operation deadline.
func New(db *sql.DB, opTimeout time.Duration) *Store {
	return &Store{db: db, opTimeout: opTimeout}
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// InsertReminder persists a new reminder. The insert either fully
// succeeds or leaves no partial state.
func (s *Store) InsertReminder(ctx context.Context, r domain.Reminder) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryInsertReminder,
		r.ID,
		r.Title,
		r.Description,
		r.RemindAt,
		r.Email,
		string(r.Status),
		r.CreatedAt,
		r.UpdatedAt,
	)
	return err
}

// GetReminder returns a reminder by id, or lifecycle.ErrReminderNotFound.
func (s *Store) GetReminder(ctx context.Context, id uuid.UUID) (domain.Reminder, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var r domain.Reminder
	var status string

	err := s.db.QueryRowContext(ctx, queryGetReminder, id).Scan(
		&r.ID,
		&r.Title,
		&r.Description,
		&r.RemindAt,
		&r.Email,
		&status,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Reminder{}, lifecycle.ErrReminderNotFound
		}
		return domain.Reminder{}, err
	}
	r.Status = domain.ReminderStatus(status)
	return r, nil
}

// UpdateReminderStatus applies the status only while the current status
// is non-terminal. The guard lives in the WHERE clause: PostgreSQL
// acquires the row lock before evaluating it, so concurrent sweep ticks,
// trigger callbacks and creation all serialize on the row without any
// application-level locking.
func (s *Store) UpdateReminderStatus(ctx context.Context, id uuid.UUID, status domain.ReminderStatus) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, queryUpdateReminderStatus, string(status), time.Now().UTC(), id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		// Either the reminder is gone or it is already terminal.
		var current string
		err := s.db.QueryRowContext(ctx, queryGetReminderStatus, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return lifecycle.ErrReminderNotFound
		}
		if err != nil {
			return err
		}
		return lifecycle.ErrStatusTransitionDenied
	}

	return nil
}

// ListDueReminders returns reminders in one of the given statuses with
// remind_at <= asOf, earliest due first.
func (s *Store) ListDueReminders(ctx context.Context, statuses []domain.ReminderStatus, asOf time.Time, limit int) ([]domain.Reminder, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	filter := make([]string, len(statuses))
	for i, st := range statuses {
		filter[i] = string(st)
	}

	rows, err := s.db.QueryContext(ctx, queryListDueReminders, pq.Array(filter), asOf, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Reminder
	for rows.Next() {
		var r domain.Reminder
		var status string

		err := rows.Scan(
			&r.ID,
			&r.Title,
			&r.Description,
			&r.RemindAt,
			&r.Email,
			&status,
			&r.CreatedAt,
			&r.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		r.Status = domain.ReminderStatus(status)
		result = append(result, r)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// UpsertNotification writes the (reminder, channel) notification row in
// a single atomic insert-or-update. The unique key on (reminder_id,
// channel) makes this the durable idempotency token for delivery.
func (s *Store) UpsertNotification(ctx context.Context, n domain.Notification) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var sentAt sql.NullTime
	if n.SentAt != nil {
		sentAt = sql.NullTime{Time: *n.SentAt, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, queryUpsertNotification,
		n.ReminderID,
		string(n.Channel),
		string(n.Status),
		sentAt,
		n.UpdatedAt,
	)
	return err
}

// InsertDeliveryAttempt records one delivery engine call.
func (s *Store) InsertDeliveryAttempt(ctx context.Context, attempt domain.DeliveryAttempt) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryInsertDeliveryAttempt,
		attempt.ID,
		attempt.ReminderID,
		string(attempt.Kind),
		attempt.StatusCode,
		attempt.Error,
		attempt.StartedAt,
		attempt.FinishedAt,
	)
	return err
}

// ListReminders returns reminders joined with their email notification
// row, ordered by due time ascending, paginated by limit and offset.
func (s *Store) ListReminders(ctx context.Context, limit, offset int) ([]api.ReminderWithNotification, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListReminders, string(domain.ChannelEmail), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []api.ReminderWithNotification
	for rows.Next() {
		var rn api.ReminderWithNotification
		var status string
		var notifStatus sql.NullString
		var sentAt sql.NullTime

		err := rows.Scan(
			&rn.Reminder.ID,
			&rn.Reminder.Title,
			&rn.Reminder.Description,
			&rn.Reminder.RemindAt,
			&rn.Reminder.Email,
			&status,
			&rn.Reminder.CreatedAt,
			&rn.Reminder.UpdatedAt,
			&notifStatus,
			&sentAt,
		)
		if err != nil {
			return nil, err
		}
		rn.Reminder.Status = domain.ReminderStatus(status)
		if notifStatus.Valid {
			rn.NotificationStatus = notifStatus.String
		}
		if sentAt.Valid {
			t := sentAt.Time
			rn.SentAt = &t
		}
		result = append(result, rn)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// DeleteReminder removes a reminder with its notification and delivery
// attempt rows. Returns lifecycle.ErrReminderNotFound when no row matched.
func (s *Store) DeleteReminder(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var deletedID uuid.UUID
	err := s.db.QueryRowContext(ctx, queryDeleteReminder, id).Scan(&deletedID)
	if errors.Is(err, sql.ErrNoRows) {
		return lifecycle.ErrReminderNotFound
	}
	return err
}

// Compile-time interface assertions
var (
	_ lifecycle.Store = (*Store)(nil)
	_ sweeper.Store   = (*Store)(nil)
	_ api.Store       = (*Store)(nil)
)
