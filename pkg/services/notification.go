package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ccrs/workflow-engine/pkg/models"
	"github.com/ccrs/workflow-engine/pkg/persistence"
	"github.com/google/uuid"
)

// Notification exposes the notification outbox: listing for inspection and
// enqueueing rows for the deliverer job to pick up.
type Notification struct {
	persistence persistence.Persistence
}

// NewNotification creates a new notification service.
func NewNotification(p persistence.Persistence) *Notification {
	return &Notification{persistence: p}
}

// List returns notifications filtered by recipient and status, with the
// total count matching the filter. Empty filters match everything.
func (s *Notification) List(ctx context.Context, recipientEmail, status string, limit, offset int) ([]*models.Notification, int64, error) {
	return s.persistence.NotificationRepository().List(ctx, recipientEmail, status, limit, offset)
}

// EnqueueRequest is the input for queueing a notification.
type EnqueueRequest struct {
	Channel             models.Channel `json:"channel"         validate:"required,oneof=email teams calendar"`
	RecipientEmail      string         `json:"recipient_email"`
	RecipientUserID     string         `json:"recipient_user_id"`
	Subject             string         `json:"subject"         validate:"required"`
	Body                string         `json:"body"`
	RelatedResourceType string         `json:"related_resource_type"`
	RelatedResourceID   string         `json:"related_resource_id"`
}

// Enqueue inserts a pending notification. Delivery happens asynchronously.
func (s *Notification) Enqueue(ctx context.Context, req EnqueueRequest) (*models.Notification, error) {
	notification := &models.Notification{
		ID:                  uuid.New().String(),
		Channel:             req.Channel,
		RecipientEmail:      req.RecipientEmail,
		RecipientUserID:     req.RecipientUserID,
		Subject:             req.Subject,
		Body:                req.Body,
		RelatedResourceType: req.RelatedResourceType,
		RelatedResourceID:   req.RelatedResourceID,
		Status:              models.NotificationStatusPending,
		CreatedAt:           time.Now().UTC(),
	}

	if err := s.persistence.NotificationRepository().Insert(ctx, notification); err != nil {
		return nil, fmt.Errorf("failed to enqueue notification: %w", err)
	}

	return notification, nil
}
