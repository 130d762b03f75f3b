package models

import (
	"encoding/json"
	"fmt"
)

// StageType classifies what happens at a stage.
type StageType string

const (
	StageTypeDraft    StageType = "draft"
	StageTypeReview   StageType = "review"
	StageTypeApproval StageType = "approval"
	StageTypeSigning  StageType = "signing"
)

// PrincipalKind discriminates what a PrincipalRef points at.
type PrincipalKind string

const (
	PrincipalKindUser PrincipalKind = "user"
	PrincipalKindRole PrincipalKind = "role"
)

// PrincipalRef identifies who may act on a stage: either a concrete user or
// a role name. Keeping the kind explicit avoids comparing user ids against
// role names by accident.
type PrincipalRef struct {
	Kind PrincipalKind `json:"kind" validate:"required,oneof=user role"`
	ID   string        `json:"id"   validate:"required"`
}

// UnmarshalJSON accepts both the structured form {"kind":"role","id":"Legal"}
// and a bare string, which is treated as a role name. Templates imported from
// older exports use the bare form.
func (p *PrincipalRef) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		p.Kind = PrincipalKindRole
		p.ID = plain

		return nil
	}

	type alias PrincipalRef

	var structured alias
	if err := json.Unmarshal(data, &structured); err != nil {
		return fmt.Errorf("invalid principal reference: %w", err)
	}

	*p = PrincipalRef(structured)

	return nil
}

// UserRef builds a user principal reference.
func UserRef(id string) PrincipalRef {
	return PrincipalRef{Kind: PrincipalKindUser, ID: id}
}

// RoleRef builds a role principal reference.
func RoleRef(name string) PrincipalRef {
	return PrincipalRef{Kind: PrincipalKindRole, ID: name}
}

// Stage is a single named step in a template's workflow graph.
type Stage struct {
	Name               string         `json:"name" validate:"required"`
	Type               StageType      `json:"type" validate:"required,oneof=draft review approval signing"`
	Description        string         `json:"description,omitempty"`
	Owners             []PrincipalRef `json:"owners"`
	Approvers          []PrincipalRef `json:"approvers"`
	RequiredArtifacts  []string       `json:"required_artifacts"`
	AllowedTransitions []string       `json:"allowed_transitions"`
	SLAHours           *int           `json:"sla_hours,omitempty"`
}

// ApproveTarget returns the canonical approve successor, or "" when the stage
// is terminal on approval.
func (s *Stage) ApproveTarget() string {
	if len(s.AllowedTransitions) == 0 {
		return ""
	}

	return s.AllowedTransitions[0]
}
