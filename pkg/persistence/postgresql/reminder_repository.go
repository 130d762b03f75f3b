package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ccrs/workflow-engine/pkg/models"
	"github.com/ccrs/workflow-engine/pkg/persistence"
)

// ReminderRepository handles contract reminder database operations.
type ReminderRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewReminderRepository creates a new reminder repository.
func NewReminderRepository(db *sql.DB, logger *slog.Logger) *ReminderRepository {
	return &ReminderRepository{db: db, logger: logger}
}

const reminderColumns = `
	id
  , contract_id
  , key_date_id
  , reminder_type
  , lead_days
  , channel
  , recipient_email
  , recipient_user_id
  , last_sent_at
  , next_due_at
  , is_active
  , created_at
  , updated_at
`

// GetByID returns a reminder by its ID.
func (r *ReminderRepository) GetByID(ctx context.Context, id string) (*models.Reminder, error) {
	query := "SELECT " + reminderColumns + " FROM reminders WHERE id = $1"

	reminder, err := r.scanReminder(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("GetByID", "reminder", id, persistence.ErrReminderNotFound)
		}

		return nil, fmt.Errorf("failed to scan reminder: %w", err)
	}

	return reminder, nil
}

// ListByContract returns a contract's reminders ordered by due time.
func (r *ReminderRepository) ListByContract(ctx context.Context, contractID string) ([]*models.Reminder, error) {
	query := "SELECT " + reminderColumns + ` FROM reminders
		WHERE contract_id = $1
		ORDER BY next_due_at NULLS LAST`

	return r.queryReminders(ctx, query, contractID)
}

// ListDue returns reminders that should fire at now: active, due, and not
// already sent in the current due cycle.
func (r *ReminderRepository) ListDue(ctx context.Context, now time.Time) ([]*models.Reminder, error) {
	query := "SELECT " + reminderColumns + ` FROM reminders
		WHERE is_active
		  AND next_due_at IS NOT NULL
		  AND next_due_at <= $1
		  AND (last_sent_at IS NULL OR last_sent_at < next_due_at)
		ORDER BY next_due_at`

	return r.queryReminders(ctx, query, now)
}

// Save upserts a reminder.
func (r *ReminderRepository) Save(ctx context.Context, reminder *models.Reminder) error {
	now := time.Now().UTC()

	if reminder.CreatedAt.IsZero() {
		reminder.CreatedAt = now
	}

	reminder.UpdatedAt = now

	if reminder.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate reminder ID: %w", err)
		}

		reminder.ID = id.String()
	}

	query := `
		INSERT INTO reminders (id, contract_id, key_date_id, reminder_type, lead_days, channel,
			recipient_email, recipient_user_id, last_sent_at, next_due_at, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			reminder_type = EXCLUDED.reminder_type,
			lead_days = EXCLUDED.lead_days,
			channel = EXCLUDED.channel,
			recipient_email = EXCLUDED.recipient_email,
			recipient_user_id = EXCLUDED.recipient_user_id,
			last_sent_at = EXCLUDED.last_sent_at,
			next_due_at = EXCLUDED.next_due_at,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		reminder.ID,
		reminder.ContractID,
		reminder.KeyDateID,
		reminder.ReminderType,
		reminder.LeadDays,
		reminder.Channel,
		reminder.RecipientEmail,
		reminder.RecipientUserID,
		reminder.LastSentAt,
		reminder.NextDueAt,
		reminder.IsActive,
		reminder.CreatedAt,
		reminder.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save reminder: %w", err)
	}

	return nil
}

// Delete removes a reminder.
func (r *ReminderRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM reminders WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete reminder: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewStoreError("Delete", "reminder", id, persistence.ErrReminderNotFound)
	}

	return nil
}

func (r *ReminderRepository) queryReminders(ctx context.Context, query string, args ...any) ([]*models.Reminder, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reminders: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	reminders := make([]*models.Reminder, 0)

	for rows.Next() {
		reminder, err := r.scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}

		reminders = append(reminders, reminder)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reminders: %w", err)
	}

	return reminders, nil
}

func (r *ReminderRepository) scanReminder(scanner interface {
	Scan(dest ...any) error
}) (*models.Reminder, error) {
	var (
		reminder                      models.Reminder
		recipientEmail, recipientUser sql.NullString
	)

	err := scanner.Scan(
		&reminder.ID,
		&reminder.ContractID,
		&reminder.KeyDateID,
		&reminder.ReminderType,
		&reminder.LeadDays,
		&reminder.Channel,
		&recipientEmail,
		&recipientUser,
		&reminder.LastSentAt,
		&reminder.NextDueAt,
		&reminder.IsActive,
		&reminder.CreatedAt,
		&reminder.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	reminder.RecipientEmail = recipientEmail.String
	reminder.RecipientUserID = recipientUser.String

	return &reminder, nil
}
