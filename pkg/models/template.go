// Package models defines the core domain models for contract workflow management.
package models

import "time"

// TemplateStatus represents the lifecycle state of a workflow template.
type TemplateStatus string

const (
	TemplateStatusDraft     TemplateStatus = "draft"     // Editable, instances cannot be started
	TemplateStatusPublished TemplateStatus = "published" // Validated, instances may be started
)

// ContractType scopes a template to a class of contracts.
type ContractType string

const (
	ContractTypeCommercial ContractType = "Commercial"
	ContractTypeMerchant   ContractType = "Merchant"
)

// WorkflowTemplate is the mutable, authorable template record. Publishing
// validates the stage graph, bumps Version and writes an immutable
// TemplateVersion snapshot; running instances only ever read snapshots.
type WorkflowTemplate struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"          validate:"required,min=3"`
	ContractType ContractType   `json:"contract_type" validate:"required,oneof=Commercial Merchant"`
	RegionID     *string        `json:"region_id,omitempty"`
	EntityID     *string        `json:"entity_id,omitempty"`
	ProjectID    *string        `json:"project_id,omitempty"`
	Stages       []Stage        `json:"stages"`
	Status       TemplateStatus `json:"status"`
	Version      int            `json:"version"`
	CreatedBy    string         `json:"created_by,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	PublishedAt  *time.Time     `json:"published_at,omitempty"`
}

// TemplateVersion is an immutable snapshot of a template's stage graph taken
// at publish time. Instances pin (TemplateID, Version) so later edits never
// alter a running instance's semantics.
type TemplateVersion struct {
	TemplateID  string    `json:"template_id"`
	Version     int       `json:"version"`
	Stages      []Stage   `json:"stages"`
	PublishedAt time.Time `json:"published_at"`
}

// StageByName returns the stage definition with the given name, or nil.
func (v *TemplateVersion) StageByName(name string) *Stage {
	for i := range v.Stages {
		if v.Stages[i].Name == name {
			return &v.Stages[i]
		}
	}

	return nil
}

// FirstStage returns the first declared stage, or nil for an empty snapshot.
func (v *TemplateVersion) FirstStage() *Stage {
	if len(v.Stages) == 0 {
		return nil
	}

	return &v.Stages[0]
}
