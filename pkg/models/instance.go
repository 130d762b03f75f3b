package models

import "time"

// InstanceState is the lifecycle state of a workflow instance.
type InstanceState string

const (
	InstanceStateActive    InstanceState = "active"
	InstanceStateCompleted InstanceState = "completed"
)

// ContractWorkflowStateCompleted is mirrored onto the contract record when
// its instance reaches the terminal state.
const ContractWorkflowStateCompleted = "completed"

// WorkflowInstance is one running execution of a template against a contract.
// TemplateVersion is pinned at start time; at most one active instance exists
// per contract.
type WorkflowInstance struct {
	ID              string        `json:"id"`
	ContractID      string        `json:"contract_id"      validate:"required"`
	TemplateID      string        `json:"template_id"      validate:"required"`
	TemplateVersion int           `json:"template_version" validate:"required,min=1"`
	CurrentStage    string        `json:"current_stage"`
	State           InstanceState `json:"state"`
	StartedAt       time.Time     `json:"started_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
}

// IsActive reports whether the instance still accepts stage actions.
func (i *WorkflowInstance) IsActive() bool {
	return i.State == InstanceStateActive
}
