package db

import (
	"context"
	"fmt"

	"github.com/moekrh-design/kpi-team-system/internal/model"
)

const notificationColumns = `id, user_id, type, title, COALESCE(body, '') AS body, COALESCE(url, '') AS url,
	COALESCE(meta_json, '') AS meta_json, is_read, created_at`

// CreateNotification stores an in-app notification.
func (q *Queries) CreateNotification(ctx context.Context, n *model.Notification) error {
	_, err := q.exec(ctx, `
		INSERT INTO notifications (id, user_id, type, title, body, url, meta_json, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Type, n.Title, nullable(n.Body), nullable(n.URL), nullable(n.MetaJSON), n.Read, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListNotifications returns a user's notifications, newest first. A limit of
// zero or less returns all of them.
func (q *Queries) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = ?`
	args := []any{userID}
	if unreadOnly {
		query += ` AND is_read = ?`
		args = append(args, false)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var notes []model.Notification
	if err := q.sel(ctx, &notes, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notes, nil
}

// UnreadCount returns how many unread notifications a user has.
func (q *Queries) UnreadCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := q.get(ctx, &n, `SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = ?`, userID, false)
	if err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return n, nil
}

// MarkRead marks one of the user's notifications as read.
func (q *Queries) MarkRead(ctx context.Context, userID, id string) error {
	result, err := q.exec(ctx, `UPDATE notifications SET is_read = ? WHERE id = ? AND user_id = ?`, true, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return mustAffect(result, "notification", id)
}

// MarkAllRead marks every unread notification of the user as read and returns
// how many changed.
func (q *Queries) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	result, err := q.exec(ctx, `UPDATE notifications SET is_read = ? WHERE user_id = ? AND is_read = ?`, true, userID, false)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// ClaimEmail records an email under its dedup key before it is sent. It
// reports false without error when the key is already taken.
func (q *Queries) ClaimEmail(ctx context.Context, l *model.EmailLog) (bool, error) {
	result, err := q.exec(ctx, `
		INSERT INTO email_logs (id, type, task_id, stage_id, to_email, ref, meta_json, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		l.ID, l.Type, l.TaskID, l.StageID, l.ToEmail, l.Ref, nullable(l.MetaJSON), l.SentAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim email: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

// ReleaseEmail drops a claim whose send failed so a later run may retry it.
func (q *Queries) ReleaseEmail(ctx context.Context, l *model.EmailLog) error {
	_, err := q.exec(ctx, `
		DELETE FROM email_logs WHERE type = ? AND task_id = ? AND stage_id = ? AND to_email = ? AND ref = ?`,
		l.Type, l.TaskID, l.StageID, l.ToEmail, l.Ref,
	)
	if err != nil {
		return fmt.Errorf("failed to release email: %w", err)
	}
	return nil
}

// ListEmailLogs returns the emails recorded for a task.
func (q *Queries) ListEmailLogs(ctx context.Context, taskID string) ([]model.EmailLog, error) {
	var logs []model.EmailLog
	err := q.sel(ctx, &logs, `
		SELECT id, type, task_id, stage_id, to_email, ref, COALESCE(meta_json, '') AS meta_json, sent_at
		FROM email_logs WHERE task_id = ? ORDER BY sent_at, id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list email logs: %w", err)
	}
	return logs, nil
}

// DueSoon returns open tasks due between from and to (inclusive, YYYY-MM-DD)
// whose employee is active and has an email address.
func (q *Queries) DueSoon(ctx context.Context, from, to string) ([]model.Reminder, error) {
	var reminders []model.Reminder
	err := q.sel(ctx, &reminders, `
		SELECT t.id AS task_id, t.title, t.due_date, t.employee_id, u.email, u.display_name
		FROM tasks t
		JOIN users u ON u.id = t.employee_id
		WHERE t.due_date IS NOT NULL
		  AND substr(t.due_date, 1, 10) BETWEEN ? AND ?
		  AND t.status NOT IN (?, ?)
		  AND u.is_active = ?
		  AND u.email IS NOT NULL AND u.email <> ''
		ORDER BY t.due_date, t.id`,
		from, to, model.StatusCompleted, model.StatusCancelled, true,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due tasks: %w", err)
	}
	return reminders, nil
}
