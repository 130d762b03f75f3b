package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ccrs/workflow-engine/pkg/audit"
	"github.com/ccrs/workflow-engine/pkg/models"
	"github.com/ccrs/workflow-engine/pkg/persistence"
	"github.com/google/uuid"
)

// Escalation manages SLA escalation rules and manual resolution of breach
// events. The breach detection itself lives in the escalation scanner.
type Escalation struct {
	persistence persistence.Persistence
	audit       audit.Logger
}

// NewEscalation creates a new escalation service.
func NewEscalation(p persistence.Persistence, auditLogger audit.Logger) *Escalation {
	return &Escalation{
		persistence: p,
		audit:       auditLogger,
	}
}

// ListRules returns all rules for a template, ordered by stage then tier.
func (s *Escalation) ListRules(ctx context.Context, templateID string) ([]*models.EscalationRule, error) {
	return s.persistence.EscalationRepository().ListRulesByTemplate(ctx, templateID)
}

// CreateRuleRequest is the input for creating an escalation rule.
type CreateRuleRequest struct {
	StageName        string  `json:"stage_name"          validate:"required"`
	Tier             int     `json:"tier"                validate:"required,min=1,max=5"`
	SLABreachHours   float64 `json:"sla_breach_hours"    validate:"required,gt=0"`
	EscalateToRole   string  `json:"escalate_to_role,omitempty"`
	EscalateToUserID string  `json:"escalate_to_user_id,omitempty"`
}

// CreateRule adds an escalation rule to a template's stage.
func (s *Escalation) CreateRule(ctx context.Context, templateID string, req CreateRuleRequest, actor *models.Actor) (*models.EscalationRule, error) {
	if _, err := s.persistence.TemplateRepository().GetByID(ctx, templateID); err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	now := time.Now().UTC()
	rule := &models.EscalationRule{
		ID:               uuid.New().String(),
		TemplateID:       templateID,
		StageName:        req.StageName,
		Tier:             req.Tier,
		SLABreachHours:   req.SLABreachHours,
		EscalateToRole:   req.EscalateToRole,
		EscalateToUserID: req.EscalateToUserID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.persistence.EscalationRepository().SaveRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to save escalation rule: %w", err)
	}

	s.audit.Record(ctx, "escalation_rule_created", "escalation_rule", rule.ID, actor, nil)

	return rule, nil
}

// DeleteRule removes an escalation rule.
func (s *Escalation) DeleteRule(ctx context.Context, ruleID string, actor *models.Actor) error {
	if err := s.persistence.EscalationRepository().DeleteRule(ctx, ruleID); err != nil {
		return fmt.Errorf("failed to delete escalation rule: %w", err)
	}

	s.audit.Record(ctx, "escalation_rule_deleted", "escalation_rule", ruleID, actor, nil)

	return nil
}

// ListActive returns unresolved escalation events, newest first.
func (s *Escalation) ListActive(ctx context.Context, limit, offset int) ([]*models.EscalationEvent, int64, error) {
	return s.persistence.EscalationRepository().ListUnresolvedEvents(ctx, limit, offset)
}

// Resolve marks an escalation event as manually resolved. After resolution a
// fresh breach of the same rule may fire a new event.
func (s *Escalation) Resolve(ctx context.Context, eventID string, actor *models.Actor) (*models.EscalationEvent, error) {
	event, err := s.persistence.EscalationRepository().ResolveEvent(ctx, eventID, actor.ID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve escalation event: %w", err)
	}

	s.audit.Record(ctx, "escalation_resolved", "escalation_event", eventID, actor, nil)

	return event, nil
}
