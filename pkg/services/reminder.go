package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ccrs/workflow-engine/pkg/audit"
	"github.com/ccrs/workflow-engine/pkg/models"
	"github.com/ccrs/workflow-engine/pkg/persistence"
	"github.com/google/uuid"
)

// KeyDateLookup resolves a contract key date to its date value. The key-date
// store itself belongs to the contract CRUD layer; the reminder service only
// needs the date to seed the first due time.
type KeyDateLookup func(ctx context.Context, keyDateID string) (time.Time, error)

// Reminder manages contract reminder definitions. Dispatching lives in the
// reminder dispatcher job.
type Reminder struct {
	persistence persistence.Persistence
	audit       audit.Logger
	keyDates    KeyDateLookup
}

// NewReminder creates a new reminder service. keyDates may be nil when the
// deployment has no key-date store; reminders then require an explicit
// next_due_at.
func NewReminder(p persistence.Persistence, auditLogger audit.Logger, keyDates KeyDateLookup) *Reminder {
	return &Reminder{
		persistence: p,
		audit:       auditLogger,
		keyDates:    keyDates,
	}
}

// ListByContract returns a contract's reminders ordered by due time.
func (s *Reminder) ListByContract(ctx context.Context, contractID string) ([]*models.Reminder, error) {
	return s.persistence.ReminderRepository().ListByContract(ctx, contractID)
}

// CreateReminderRequest is the input for creating a reminder.
type CreateReminderRequest struct {
	KeyDateID       *string             `json:"key_date_id,omitempty"`
	ReminderType    models.ReminderType `json:"reminder_type" validate:"required,oneof=expiry renewal_notice payment sla obligation custom"`
	LeadDays        int                 `json:"lead_days"     validate:"required,min=1"`
	Channel         models.Channel      `json:"channel"       validate:"required,oneof=email teams calendar"`
	RecipientEmail  string              `json:"recipient_email,omitempty"`
	RecipientUserID string              `json:"recipient_user_id,omitempty"`
	NextDueAt       *time.Time          `json:"next_due_at,omitempty"`
}

// Create stores a reminder. When a key date is referenced, the first due
// time is the key date minus lead days, at midnight UTC; subsequent cycles
// advance by lead days from each send.
func (s *Reminder) Create(ctx context.Context, contractID string, req CreateReminderRequest, actor *models.Actor) (*models.Reminder, error) {
	if req.LeadDays <= 0 {
		return nil, ErrInvalidLeadDays
	}

	nextDueAt := req.NextDueAt

	if req.KeyDateID != nil && s.keyDates != nil {
		dateValue, err := s.keyDate(ctx, *req.KeyDateID)
		if err != nil {
			return nil, err
		}

		due := dateValue.AddDate(0, 0, -req.LeadDays)
		due = time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
		nextDueAt = &due
	}

	now := time.Now().UTC()
	reminder := &models.Reminder{
		ID:              uuid.New().String(),
		ContractID:      contractID,
		KeyDateID:       req.KeyDateID,
		ReminderType:    req.ReminderType,
		LeadDays:        req.LeadDays,
		Channel:         req.Channel,
		RecipientEmail:  req.RecipientEmail,
		RecipientUserID: req.RecipientUserID,
		NextDueAt:       nextDueAt,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.persistence.ReminderRepository().Save(ctx, reminder); err != nil {
		return nil, fmt.Errorf("failed to save reminder: %w", err)
	}

	s.audit.Record(ctx, "reminder_created", "reminder", reminder.ID, actor, map[string]any{
		"contract_id": contractID,
	})

	return reminder, nil
}

// UpdateReminderRequest carries partial reminder updates.
type UpdateReminderRequest struct {
	LeadDays        *int            `json:"lead_days,omitempty" validate:"omitempty,min=1"`
	Channel         *models.Channel `json:"channel,omitempty"   validate:"omitempty,oneof=email teams calendar"`
	RecipientEmail  *string         `json:"recipient_email,omitempty"`
	RecipientUserID *string         `json:"recipient_user_id,omitempty"`
	NextDueAt       *time.Time      `json:"next_due_at,omitempty"`
	IsActive        *bool           `json:"is_active,omitempty"`
}

// Update applies changes to a reminder.
func (s *Reminder) Update(ctx context.Context, reminderID string, req UpdateReminderRequest, actor *models.Actor) (*models.Reminder, error) {
	reminder, err := s.persistence.ReminderRepository().GetByID(ctx, reminderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reminder: %w", err)
	}

	if req.LeadDays != nil {
		if *req.LeadDays <= 0 {
			return nil, ErrInvalidLeadDays
		}

		reminder.LeadDays = *req.LeadDays
	}

	if req.Channel != nil {
		reminder.Channel = *req.Channel
	}

	if req.RecipientEmail != nil {
		reminder.RecipientEmail = *req.RecipientEmail
	}

	if req.RecipientUserID != nil {
		reminder.RecipientUserID = *req.RecipientUserID
	}

	if req.NextDueAt != nil {
		reminder.NextDueAt = req.NextDueAt
	}

	if req.IsActive != nil {
		reminder.IsActive = *req.IsActive
	}

	reminder.UpdatedAt = time.Now().UTC()

	if err := s.persistence.ReminderRepository().Save(ctx, reminder); err != nil {
		return nil, fmt.Errorf("failed to save reminder: %w", err)
	}

	s.audit.Record(ctx, "reminder_updated", "reminder", reminder.ID, actor, nil)

	return reminder, nil
}

// Delete removes a reminder.
func (s *Reminder) Delete(ctx context.Context, reminderID string, actor *models.Actor) error {
	if err := s.persistence.ReminderRepository().Delete(ctx, reminderID); err != nil {
		return fmt.Errorf("failed to delete reminder: %w", err)
	}

	s.audit.Record(ctx, "reminder_deleted", "reminder", reminderID, actor, nil)

	return nil
}

func (s *Reminder) keyDate(ctx context.Context, keyDateID string) (time.Time, error) {
	dateValue, err := s.keyDates(ctx, keyDateID)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to resolve key date: %w", err)
	}

	return dateValue, nil
}
