package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ccrs/workflow-engine/pkg/models"
	redis "github.com/redis/go-redis/v9"
)

// QueueTransport pushes rendered notifications onto a Redis list. External
// delivery workers (Teams connector, calendar invite sender) consume the
// list; this process only ever produces.
type QueueTransport struct {
	client redis.UniversalClient
	queue  string
	logger *slog.Logger
}

// queueMessage is the wire shape consumed by the delivery workers.
type queueMessage struct {
	ID                  string `json:"id"`
	Channel             string `json:"channel"`
	RecipientEmail      string `json:"recipient_email"`
	RecipientUserID     string `json:"recipient_user_id,omitempty"`
	Subject             string `json:"subject"`
	Body                string `json:"body"`
	RelatedResourceType string `json:"related_resource_type,omitempty"`
	RelatedResourceID   string `json:"related_resource_id,omitempty"`
}

// NewQueueTransport creates a Redis-backed transport publishing to the given
// list key.
func NewQueueTransport(redisURL, queue string, logger *slog.Logger) (*QueueTransport, error) {
	if queue == "" {
		return nil, errors.New("notification queue name is required")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	return &QueueTransport{
		client: redis.NewClient(opts),
		queue:  queue,
		logger: logger.With("module", "notification_queue", "queue", queue),
	}, nil
}

func (t *QueueTransport) Send(ctx context.Context, notification *models.Notification) error {
	payload, err := json.Marshal(queueMessage{
		ID:                  notification.ID,
		Channel:             string(notification.Channel),
		RecipientEmail:      notification.RecipientEmail,
		RecipientUserID:     notification.RecipientUserID,
		Subject:             notification.Subject,
		Body:                notification.Body,
		RelatedResourceType: notification.RelatedResourceType,
		RelatedResourceID:   notification.RelatedResourceID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := t.client.LPush(ctx, t.queue, payload).Err(); err != nil {
		return fmt.Errorf("failed to push notification to queue: %w", err)
	}

	t.logger.DebugContext(ctx, "Notification queued", "notification_id", notification.ID)

	return nil
}

// Close releases the underlying Redis connection.
func (t *QueueTransport) Close() error {
	return t.client.Close()
}
