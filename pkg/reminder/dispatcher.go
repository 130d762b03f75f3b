// Package reminder implements the periodic dispatcher for date-driven
// contract reminders.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ccrs/workflow-engine/pkg/eventbus"
	"github.com/ccrs/workflow-engine/pkg/events"
	"github.com/ccrs/workflow-engine/pkg/models"
	"github.com/ccrs/workflow-engine/pkg/persistence"
	"github.com/google/uuid"
)

// Dispatcher finds due reminders, enqueues one notification each and
// reschedules the next occurrence. The recurrence is a fixed offset: the new
// due time is now + lead_days, not re-derived from the original key date.
type Dispatcher struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventPublisher
	logger      *slog.Logger
	now         func() time.Time
}

// NewDispatcher creates a reminder dispatcher.
func NewDispatcher(p persistence.Persistence, bus eventbus.EventPublisher, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		persistence: p,
		eventBus:    bus,
		logger:      logger.With("module", "reminder_dispatcher"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the dispatcher's time source for tests.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now

	return d
}

// ProcessDue runs one dispatch pass and returns the number of reminders
// sent. A failure on one reminder is logged and does not abort the batch.
func (d *Dispatcher) ProcessDue(ctx context.Context) (int, error) {
	now := d.now()

	due, err := d.persistence.ReminderRepository().ListDue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list due reminders: %w", err)
	}

	sent := 0

	for _, reminder := range due {
		if err := d.dispatch(ctx, reminder, now); err != nil {
			d.logger.ErrorContext(ctx, "Reminder dispatch failed",
				"reminder_id", reminder.ID,
				"error", err)

			continue
		}

		sent++
	}

	d.logger.InfoContext(ctx, "Reminders processed", "sent", sent)

	return sent, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, reminder *models.Reminder, now time.Time) error {
	contractLabel := reminder.ContractID
	if contract, err := d.persistence.ContractRepository().GetRef(ctx, reminder.ContractID); err == nil && contract.Title != "" {
		contractLabel = contract.Title
	}

	notification := &models.Notification{
		ID:                  uuid.New().String(),
		RecipientEmail:      reminder.RecipientEmail,
		RecipientUserID:     reminder.RecipientUserID,
		Channel:             reminder.Channel,
		Subject:             fmt.Sprintf("Reminder: %s for contract", reminder.ReminderType),
		Body:                fmt.Sprintf("Reminder for contract %s. Type: %s. Lead time: %d days.", contractLabel, reminder.ReminderType, reminder.LeadDays),
		RelatedResourceType: "contract",
		RelatedResourceID:   reminder.ContractID,
		Status:              models.NotificationStatusPending,
		CreatedAt:           now,
	}

	if err := d.persistence.NotificationRepository().Insert(ctx, notification); err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}

	nextDue := now.AddDate(0, 0, reminder.LeadDays)
	reminder.LastSentAt = &now
	reminder.NextDueAt = &nextDue
	reminder.UpdatedAt = now

	if err := d.persistence.ReminderRepository().Save(ctx, reminder); err != nil {
		return fmt.Errorf("failed to reschedule reminder: %w", err)
	}

	if d.eventBus != nil {
		busEvent := events.ReminderDispatched{
			BaseEvent:    events.NewBaseEvent(events.ReminderDispatchedEvent, reminder.ContractID),
			ReminderID:   reminder.ID,
			ReminderType: string(reminder.ReminderType),
			Channel:      string(reminder.Channel),
		}
		if err := d.eventBus.Publish(ctx, reminder.ContractID, busEvent); err != nil {
			d.logger.ErrorContext(ctx, "Failed to publish reminder event", "error", err)
		}
	}

	return nil
}
