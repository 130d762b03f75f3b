package models

import "time"

// StageActionType is what an actor did at a stage.
type StageActionType string

const (
	ActionApprove StageActionType = "approve"
	ActionReject  StageActionType = "reject"
	ActionRework  StageActionType = "rework"
)

// Valid reports whether the action type is one the engine understands.
func (a StageActionType) Valid() bool {
	switch a {
	case ActionApprove, ActionReject, ActionRework:
		return true
	default:
		return false
	}
}

// StageAction is one append-only history row. The log is never mutated; the
// newest row per instance is also how time-in-stage is derived.
type StageAction struct {
	ID         string          `json:"id"`
	InstanceID string          `json:"instance_id"`
	StageName  string          `json:"stage_name"`
	Action     StageActionType `json:"action"`
	ActorID    string          `json:"actor_id"`
	ActorEmail string          `json:"actor_email,omitempty"`
	Comment    string          `json:"comment,omitempty"`
	Artifacts  map[string]any  `json:"artifacts,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
