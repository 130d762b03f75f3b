package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ccrs/workflow-engine/pkg/models"
	"github.com/ccrs/workflow-engine/pkg/persistence"
)

// NotificationRepository handles the notification outbox.
type NotificationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewNotificationRepository creates a new notification repository.
func NewNotificationRepository(db *sql.DB, logger *slog.Logger) *NotificationRepository {
	return &NotificationRepository{db: db, logger: logger}
}

const notificationColumns = `
	id
  , recipient_email
  , recipient_user_id
  , channel
  , subject
  , body
  , related_resource_type
  , related_resource_id
  , status
  , error_message
  , sent_at
  , created_at
`

// Insert enqueues a notification.
func (r *NotificationRepository) Insert(ctx context.Context, notification *models.Notification) error {
	if notification.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate notification ID: %w", err)
		}

		notification.ID = id.String()
	}

	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}

	if notification.Status == "" {
		notification.Status = models.NotificationStatusPending
	}

	query := `
		INSERT INTO notifications (id, recipient_email, recipient_user_id, channel, subject, body,
			related_resource_type, related_resource_id, status, error_message, sent_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		notification.ID,
		notification.RecipientEmail,
		notification.RecipientUserID,
		notification.Channel,
		notification.Subject,
		notification.Body,
		notification.RelatedResourceType,
		notification.RelatedResourceID,
		notification.Status,
		notification.ErrorMessage,
		notification.SentAt,
		notification.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}

	return nil
}

// ListPending returns pending notifications oldest first, up to limit.
func (r *NotificationRepository) ListPending(ctx context.Context, limit int) ([]*models.Notification, error) {
	query := "SELECT " + notificationColumns + ` FROM notifications
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending notifications: %w", err)
	}

	return r.collect(ctx, rows)
}

// List returns notifications filtered by recipient and status, newest first,
// plus the unpaged total count. Empty filters match everything.
func (r *NotificationRepository) List(ctx context.Context, recipientEmail, status string, limit, offset int) ([]*models.Notification, int64, error) {
	where := "WHERE 1=1"
	args := make([]any, 0, 4)

	if recipientEmail != "" {
		args = append(args, recipientEmail)
		where += fmt.Sprintf(" AND recipient_email = $%d", len(args))
	}

	if status != "" {
		args = append(args, status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int64

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM notifications "+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	query := "SELECT " + notificationColumns + " FROM notifications " + where + " ORDER BY created_at DESC"

	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query notifications: %w", err)
	}

	notifications, err := r.collect(ctx, rows)
	if err != nil {
		return nil, 0, err
	}

	return notifications, total, nil
}

// MarkSent records a successful delivery.
func (r *NotificationRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	return r.markStatus(ctx, id, "UPDATE notifications SET status = 'sent', sent_at = $2, error_message = NULL WHERE id = $1", sentAt)
}

// MarkFailed records a delivery failure.
func (r *NotificationRepository) MarkFailed(ctx context.Context, id string, errorMessage string) error {
	return r.markStatus(ctx, id, "UPDATE notifications SET status = 'failed', error_message = $2 WHERE id = $1", errorMessage)
}

func (r *NotificationRepository) markStatus(ctx context.Context, id, query string, arg any) error {
	result, err := r.db.ExecContext(ctx, query, id, arg)
	if err != nil {
		return fmt.Errorf("failed to update notification status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewStoreError("MarkStatus", "notification", id, persistence.ErrNotificationNotFound)
	}

	return nil
}

func (r *NotificationRepository) collect(ctx context.Context, rows *sql.Rows) ([]*models.Notification, error) {
	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	notifications := make([]*models.Notification, 0)

	for rows.Next() {
		var (
			notification                         models.Notification
			recipientEmail, recipientUser, body  sql.NullString
			relatedType, relatedID, errorMessage sql.NullString
		)

		err := rows.Scan(
			&notification.ID,
			&recipientEmail,
			&recipientUser,
			&notification.Channel,
			&notification.Subject,
			&body,
			&relatedType,
			&relatedID,
			&notification.Status,
			&errorMessage,
			&notification.SentAt,
			&notification.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}

		notification.RecipientEmail = recipientEmail.String
		notification.RecipientUserID = recipientUser.String
		notification.Body = body.String
		notification.RelatedResourceType = relatedType.String
		notification.RelatedResourceID = relatedID.String
		notification.ErrorMessage = errorMessage.String

		notifications = append(notifications, &notification)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}

	return notifications, nil
}
