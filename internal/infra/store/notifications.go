package store

import (
	"context"
	"time"

	"github.com/sololeveling/lifesystem/internal/domain"
)

// ─── Notifications ──────────────────────────────────────────────────────────

// InsertNotification stores a notification.
func (r *repo) InsertNotification(ctx context.Context, n domain.Notification) error {
	_, err := r.exec(ctx,
		`INSERT INTO notifications (id, user_id, type, title, message, created_at, expires_at, is_read)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, string(n.Type), n.Title, n.Message,
		n.CreatedAt.Unix(), n.ExpiresAt.Unix(), b2i(n.Read))
	return err
}

// CountNotificationsSince counts notifications created at or after since.
func (r *repo) CountNotificationsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	return r.count(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND created_at >= ?`,
		userID, since.Unix())
}

// ListNotifications returns unexpired notifications, newest first.
func (r *repo) ListNotifications(ctx context.Context, userID string, now time.Time, unreadOnly bool, limit int) ([]domain.Notification, error) {
	query := `SELECT id, user_id, type, title, message, created_at, expires_at, is_read
		FROM notifications WHERE user_id = ? AND expires_at > ?`
	args := []any{userID, now.Unix()}
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var createdAt, expiresAt int64
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message,
			&createdAt, &expiresAt, &n.Read); err != nil {
			return nil, err
		}
		n.CreatedAt = time.Unix(createdAt, 0)
		n.ExpiresAt = time.Unix(expiresAt, 0)
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationRead marks one of the user's notifications read.
func (r *repo) MarkNotificationRead(ctx context.Context, userID, id string) error {
	res, err := r.exec(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	return requireRow(res, "notification %s", id)
}

// PurgeExpiredNotifications deletes notifications past their expiry.
func (r *repo) PurgeExpiredNotifications(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.exec(ctx, `DELETE FROM notifications WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
