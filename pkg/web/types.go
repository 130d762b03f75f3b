// Package web provides HTTP request and response types for the workflow API.
package web

import (
	"github.com/ccrs/workflow-engine/pkg/models"
)

// ErrorResponse represents a standardized API error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// StartInstanceRequest represents the request body for starting a workflow
// instance against a contract.
type StartInstanceRequest struct {
	ContractID string `json:"contract_id" validate:"required"`
	TemplateID string `json:"template_id" validate:"required"`
}

// RecordActionRequest represents the request body for recording a stage
// action. The stage name must match the instance's current stage.
type RecordActionRequest struct {
	StageName string                 `json:"stage_name" validate:"required"`
	Action    models.StageActionType `json:"action"     validate:"required,oneof=approve reject rework"`
	Comment   string                 `json:"comment,omitempty"`
	Artifacts map[string]any         `json:"artifacts,omitempty"`
}

// InstanceResponse decorates an instance with its stage definitions from the
// pinned snapshot, so clients can render owners and transitions without a
// second round trip.
type InstanceResponse struct {
	*models.WorkflowInstance

	Stages []models.Stage `json:"stages,omitempty"`
}
