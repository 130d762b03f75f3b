package models

import "time"

// EscalationRule defines an SLA threshold for one stage of a template. Tiers
// allow staged escalation: tier 1 fires first, higher tiers at later
// thresholds.
type EscalationRule struct {
	ID               string    `json:"id"`
	TemplateID       string    `json:"workflow_template_id" validate:"required"`
	StageName        string    `json:"stage_name"           validate:"required"`
	Tier             int       `json:"tier"                 validate:"min=1,max=5"`
	SLABreachHours   float64   `json:"sla_breach_hours"     validate:"required,gt=0"`
	EscalateToRole   string    `json:"escalate_to_role,omitempty"`
	EscalateToUserID string    `json:"escalate_to_user_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// EscalationTarget returns the notification recipient for a breach of this
// rule, preferring the concrete user over the role.
func (r *EscalationRule) EscalationTarget() string {
	if r.EscalateToUserID != "" {
		return r.EscalateToUserID
	}

	return r.EscalateToRole
}

// EscalationEvent records that an instance crossed a rule's threshold. At
// most one unresolved event exists per (instance, rule); after manual
// resolution a fresh breach of the same rule may fire again.
type EscalationEvent struct {
	ID          string     `json:"id"`
	InstanceID  string     `json:"workflow_instance_id"`
	RuleID      string     `json:"rule_id"`
	ContractID  string     `json:"contract_id"`
	StageName   string     `json:"stage_name"`
	Tier        int        `json:"tier"`
	EscalatedAt time.Time  `json:"escalated_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy  string     `json:"resolved_by,omitempty"`
}

// Resolved reports whether the event has been manually resolved.
func (e *EscalationEvent) Resolved() bool {
	return e.ResolvedAt != nil
}
