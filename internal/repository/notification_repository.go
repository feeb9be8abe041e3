package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/clatprep/clat-prep-api/internal/models"
)

const notificationColumns = `id, doubt_id, user_id, notification_type, title, message, metadata, priority, is_read, read_at, created_at`

// NotificationRepository manages persistence for doubt notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs a new repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification row. Duplicate sends produce duplicate rows;
// delivery is at-least-once by design.
func (r *NotificationRepository) Create(ctx context.Context, n *models.DoubtNotification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Priority == "" {
		n.Priority = models.NotificationPriorityNormal
	}
	query := `INSERT INTO doubt_notifications (id, doubt_id, user_id, notification_type, title, message, metadata, priority, is_read, created_at)
VALUES (:id, :doubt_id, :user_id, :notification_type, :title, :message, :metadata, :priority, :is_read, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListForUser returns the recipient's notifications, newest first.
func (r *NotificationRepository) ListForUser(ctx context.Context, userID string, limit, offset int) ([]models.DoubtNotification, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf("SELECT %s FROM doubt_notifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT %d OFFSET %d", notificationColumns, limit, offset)
	var notifications []models.DoubtNotification
	if err := r.db.SelectContext(ctx, &notifications, query, userID); err != nil {
		return nil, 0, fmt.Errorf("list notifications for user %s: %w", userID, err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM doubt_notifications WHERE user_id = $1", userID); err != nil {
		return nil, 0, fmt.Errorf("count notifications for user %s: %w", userID, err)
	}
	return notifications, total, nil
}

// MarkRead flips is_read for the given ids, scoped to the requesting user so
// one user cannot acknowledge another's notifications. Returns the number of
// rows updated.
func (r *NotificationRepository) MarkRead(ctx context.Context, ids []string, userID string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := `UPDATE doubt_notifications SET is_read = TRUE, read_at = $1 WHERE id = ANY($2) AND user_id = $3 AND is_read = FALSE`
	res, err := r.db.ExecContext(ctx, query, time.Now().UTC(), pq.Array(ids), userID)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark notifications read rows affected: %w", err)
	}
	return affected, nil
}

// UnreadCount returns the number of unread notifications for a user.
func (r *NotificationRepository) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM doubt_notifications WHERE user_id = $1 AND is_read = FALSE", userID); err != nil {
		return 0, fmt.Errorf("unread count for user %s: %w", userID, err)
	}
	return count, nil
}

// PurgeOlderThan deletes notifications older than the given retention window.
func (r *NotificationRepository) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	res, err := r.db.ExecContext(ctx, "DELETE FROM doubt_notifications WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge notifications older than %d days: %w", days, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge notifications rows affected: %w", err)
	}
	return affected, nil
}
