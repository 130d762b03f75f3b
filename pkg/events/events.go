// Package events defines event types and structures for workflow lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic is the single topic all workflow lifecycle events are published on.
const Topic = "ccrs.workflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Template lifecycle events.
	TemplatePublishedEvent EventType = "workflow.template.published"

	// Instance lifecycle events.
	InstanceStartedEvent     EventType = "workflow.instance.started"
	StageActionRecordedEvent EventType = "workflow.stage.action_recorded"
	InstanceCompletedEvent   EventType = "workflow.instance.completed"

	// Background job events.
	EscalationCreatedEvent  EventType = "workflow.escalation.created"
	ReminderDispatchedEvent EventType = "workflow.reminder.dispatched"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	ContractID string         `json:"contract_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, contractID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		ContractID: contractID,
		Metadata:   make(map[string]any),
	}
}

type TemplatePublished struct {
	BaseEvent

	TemplateID string `json:"template_id"`
	Version    int    `json:"version"`
}

func (e TemplatePublished) GetType() EventType {
	return TemplatePublishedEvent
}

type InstanceStarted struct {
	BaseEvent

	InstanceID      string `json:"instance_id"`
	TemplateID      string `json:"template_id"`
	TemplateVersion int    `json:"template_version"`
	FirstStage      string `json:"first_stage"`
}

func (e InstanceStarted) GetType() EventType {
	return InstanceStartedEvent
}

type StageActionRecorded struct {
	BaseEvent

	InstanceID string `json:"instance_id"`
	StageName  string `json:"stage_name"`
	Action     string `json:"action"`
	ActorID    string `json:"actor_id"`
	NextStage  string `json:"next_stage,omitempty"`
}

func (e StageActionRecorded) GetType() EventType {
	return StageActionRecordedEvent
}

type InstanceCompleted struct {
	BaseEvent

	InstanceID string `json:"instance_id"`
	FinalStage string `json:"final_stage"`
}

func (e InstanceCompleted) GetType() EventType {
	return InstanceCompletedEvent
}

type EscalationCreated struct {
	BaseEvent

	InstanceID   string  `json:"instance_id"`
	RuleID       string  `json:"rule_id"`
	StageName    string  `json:"stage_name"`
	Tier         int     `json:"tier"`
	HoursInStage float64 `json:"hours_in_stage"`
}

func (e EscalationCreated) GetType() EventType {
	return EscalationCreatedEvent
}

type ReminderDispatched struct {
	BaseEvent

	ReminderID   string `json:"reminder_id"`
	ReminderType string `json:"reminder_type"`
	Channel      string `json:"channel"`
}

func (e ReminderDispatched) GetType() EventType {
	return ReminderDispatchedEvent
}
