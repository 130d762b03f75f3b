// Package notification implements asynchronous delivery of enqueued
// notifications. The engine and the background jobs only ever insert pending
// rows; the deliverer drains them on its own cadence.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ccrs/workflow-engine/pkg/models"
	"github.com/ccrs/workflow-engine/pkg/persistence"
)

const defaultBatchSize = 50

// Transport sends one rendered notification over a concrete channel.
type Transport interface {
	Send(ctx context.Context, notification *models.Notification) error
}

// Deliverer drains pending notifications and hands each to the transport
// registered for its channel. A send failure marks the row failed with the
// error message; the rest of the batch continues.
type Deliverer struct {
	persistence persistence.Persistence
	transports  map[models.Channel]Transport
	logger      *slog.Logger
	batchSize   int
	now         func() time.Time
}

// NewDeliverer creates a notification deliverer. Channels without a
// registered transport fall back to the log transport so notifications are
// never silently dropped in environments without real delivery credentials.
func NewDeliverer(p persistence.Persistence, logger *slog.Logger) *Deliverer {
	moduleLogger := logger.With("module", "notification_deliverer")

	return &Deliverer{
		persistence: p,
		transports: map[models.Channel]Transport{
			models.ChannelEmail: NewLogTransport(moduleLogger),
		},
		logger:    moduleLogger,
		batchSize: defaultBatchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithTransport registers the transport for a channel.
func (d *Deliverer) WithTransport(channel models.Channel, transport Transport) *Deliverer {
	d.transports[channel] = transport

	return d
}

// WithClock overrides the deliverer's time source for tests.
func (d *Deliverer) WithClock(now func() time.Time) *Deliverer {
	d.now = now

	return d
}

// SendPending delivers one batch of pending notifications and returns the
// number sent.
func (d *Deliverer) SendPending(ctx context.Context) (int, error) {
	pending, err := d.persistence.NotificationRepository().ListPending(ctx, d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending notifications: %w", err)
	}

	sent := 0

	for _, notification := range pending {
		if err := d.deliver(ctx, notification); err != nil {
			d.logger.ErrorContext(ctx, "Notification delivery failed",
				"notification_id", notification.ID,
				"channel", notification.Channel,
				"error", err)

			if markErr := d.persistence.NotificationRepository().MarkFailed(ctx, notification.ID, err.Error()); markErr != nil {
				d.logger.ErrorContext(ctx, "Failed to mark notification failed",
					"notification_id", notification.ID,
					"error", markErr)
			}

			continue
		}

		if err := d.persistence.NotificationRepository().MarkSent(ctx, notification.ID, d.now()); err != nil {
			d.logger.ErrorContext(ctx, "Failed to mark notification sent",
				"notification_id", notification.ID,
				"error", err)

			continue
		}

		sent++
	}

	d.logger.InfoContext(ctx, "Notifications processed", "sent", sent)

	return sent, nil
}

func (d *Deliverer) deliver(ctx context.Context, notification *models.Notification) error {
	transport, ok := d.transports[notification.Channel]
	if !ok {
		transport = d.transports[models.ChannelEmail]
	}

	return transport.Send(ctx, notification)
}

// LogTransport writes notifications to the structured log instead of an
// external service. It is the default for email when no provider is wired.
type LogTransport struct {
	logger *slog.Logger
}

func NewLogTransport(logger *slog.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(ctx context.Context, notification *models.Notification) error {
	t.logger.InfoContext(ctx, "Notification logged",
		"channel", notification.Channel,
		"recipient", notification.RecipientEmail,
		"subject", notification.Subject)

	return nil
}
