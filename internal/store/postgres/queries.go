package postgres

const queryInsertReminder = `
INSERT INTO reminders (id, title, description, remind_at, email, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

const queryGetReminder = `
SELECT id, title, description, remind_at, email, status, created_at, updated_at
FROM reminders
WHERE id = $1
`

const queryGetReminderStatus = `
SELECT status FROM reminders WHERE id = $1
`

const queryUpdateReminderStatus = `
UPDATE reminders
SET status = $1, updated_at = $2
WHERE id = $3
  AND status NOT IN ('overdue', 'triggered')
`

const queryListDueReminders = `
SELECT id, title, description, remind_at, email, status, created_at, updated_at
FROM reminders
WHERE status = ANY($1)
  AND remind_at <= $2
ORDER BY remind_at ASC
LIMIT $3
`

const queryUpsertNotification = `
INSERT INTO notifications (reminder_id, channel, status, sent_at, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (reminder_id, channel)
DO UPDATE SET status = EXCLUDED.status, sent_at = EXCLUDED.sent_at, updated_at = EXCLUDED.updated_at
`

const queryInsertDeliveryAttempt = `
INSERT INTO delivery_attempts (id, reminder_id, kind, status_code, error, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

const queryListReminders = `
SELECT
    r.id, r.title, r.description, r.remind_at, r.email, r.status, r.created_at, r.updated_at,
    n.status, n.sent_at
FROM reminders r
LEFT JOIN notifications n ON n.reminder_id = r.id AND n.channel = $1
ORDER BY r.remind_at ASC
LIMIT $2 OFFSET $3
`

const queryDeleteReminder = `
WITH deleted_attempts AS (
    DELETE FROM delivery_attempts WHERE reminder_id = $1
),
deleted_notifications AS (
    DELETE FROM notifications WHERE reminder_id = $1
)
DELETE FROM reminders WHERE id = $1
RETURNING id`
