package models

import "time"

// NotificationStatus tracks delivery of an enqueued notification.
type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "pending"
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
)

// Notification is an outbound message enqueued by the engine and picked up
// asynchronously by the delivery job. The engine never sends directly.
type Notification struct {
	ID                  string             `json:"id"`
	RecipientEmail      string             `json:"recipient_email"`
	RecipientUserID     string             `json:"recipient_user_id,omitempty"`
	Channel             Channel            `json:"channel"`
	Subject             string             `json:"subject"`
	Body                string             `json:"body"`
	RelatedResourceType string             `json:"related_resource_type,omitempty"`
	RelatedResourceID   string             `json:"related_resource_id,omitempty"`
	Status              NotificationStatus `json:"status"`
	ErrorMessage        string             `json:"error_message,omitempty"`
	SentAt              *time.Time         `json:"sent_at,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
}
