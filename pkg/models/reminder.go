package models

import "time"

// ReminderType classifies what a reminder is about.
type ReminderType string

const (
	ReminderTypeExpiry        ReminderType = "expiry"
	ReminderTypeRenewalNotice ReminderType = "renewal_notice"
	ReminderTypePayment       ReminderType = "payment"
	ReminderTypeSLA           ReminderType = "sla"
	ReminderTypeObligation    ReminderType = "obligation"
	ReminderTypeCustom        ReminderType = "custom"
)

// Channel is how a notification is delivered.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelTeams    Channel = "teams"
	ChannelCalendar Channel = "calendar"
)

// Reminder is a recurring date-driven follow-up for a contract. On each send
// NextDueAt advances by LeadDays from "now"; the cadence is a fixed offset,
// not re-derived from the original key date on repeat cycles.
type Reminder struct {
	ID              string       `json:"id"`
	ContractID      string       `json:"contract_id"   validate:"required"`
	KeyDateID       *string      `json:"key_date_id,omitempty"`
	ReminderType    ReminderType `json:"reminder_type" validate:"required,oneof=expiry renewal_notice payment sla obligation custom"`
	LeadDays        int          `json:"lead_days"     validate:"required,min=1"`
	Channel         Channel      `json:"channel"       validate:"required,oneof=email teams calendar"`
	RecipientEmail  string       `json:"recipient_email,omitempty"`
	RecipientUserID string       `json:"recipient_user_id,omitempty"`
	LastSentAt      *time.Time   `json:"last_sent_at,omitempty"`
	NextDueAt       *time.Time   `json:"next_due_at,omitempty"`
	IsActive        bool         `json:"is_active"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// IsDue reports whether the reminder should fire at now. A reminder fires
// once per due cycle: either it has never been sent, or NextDueAt was
// advanced past the last send.
func (r *Reminder) IsDue(now time.Time) bool {
	if !r.IsActive || r.NextDueAt == nil {
		return false
	}

	if r.NextDueAt.After(now) {
		return false
	}

	return r.LastSentAt == nil || r.LastSentAt.Before(*r.NextDueAt)
}
