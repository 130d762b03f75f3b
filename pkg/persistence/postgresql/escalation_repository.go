package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ccrs/workflow-engine/pkg/models"
	"github.com/ccrs/workflow-engine/pkg/persistence"
)

// EscalationRepository handles SLA rule and breach event database
// operations.
type EscalationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewEscalationRepository creates a new escalation repository.
func NewEscalationRepository(db *sql.DB, logger *slog.Logger) *EscalationRepository {
	return &EscalationRepository{db: db, logger: logger}
}

const ruleColumns = `
	id
  , workflow_template_id
  , stage_name
  , tier
  , sla_breach_hours
  , escalate_to_role
  , escalate_to_user_id
  , created_at
  , updated_at
`

// ListRulesByTemplate returns a template's rules ordered by stage and tier.
func (r *EscalationRepository) ListRulesByTemplate(ctx context.Context, templateID string) ([]*models.EscalationRule, error) {
	query := "SELECT " + ruleColumns + ` FROM escalation_rules
		WHERE workflow_template_id = $1
		ORDER BY stage_name, tier`

	return r.queryRules(ctx, query, templateID)
}

// ListRulesByStage returns rules for (template, stage) ordered by tier
// ascending.
func (r *EscalationRepository) ListRulesByStage(ctx context.Context, templateID, stageName string) ([]*models.EscalationRule, error) {
	query := "SELECT " + ruleColumns + ` FROM escalation_rules
		WHERE workflow_template_id = $1 AND stage_name = $2
		ORDER BY tier`

	return r.queryRules(ctx, query, templateID, stageName)
}

// SaveRule upserts an escalation rule.
func (r *EscalationRepository) SaveRule(ctx context.Context, rule *models.EscalationRule) error {
	now := time.Now().UTC()

	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}

	rule.UpdatedAt = now

	if rule.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate rule ID: %w", err)
		}

		rule.ID = id.String()
	}

	query := `
		INSERT INTO escalation_rules (id, workflow_template_id, stage_name, tier,
			sla_breach_hours, escalate_to_role, escalate_to_user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			stage_name = EXCLUDED.stage_name,
			tier = EXCLUDED.tier,
			sla_breach_hours = EXCLUDED.sla_breach_hours,
			escalate_to_role = EXCLUDED.escalate_to_role,
			escalate_to_user_id = EXCLUDED.escalate_to_user_id,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		rule.ID,
		rule.TemplateID,
		rule.StageName,
		rule.Tier,
		rule.SLABreachHours,
		rule.EscalateToRole,
		rule.EscalateToUserID,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save escalation rule: %w", err)
	}

	return nil
}

// DeleteRule removes an escalation rule.
func (r *EscalationRepository) DeleteRule(ctx context.Context, ruleID string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM escalation_rules WHERE id = $1", ruleID)
	if err != nil {
		return fmt.Errorf("failed to delete escalation rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewStoreError("DeleteRule", "escalation_rule", ruleID, persistence.ErrRuleNotFound)
	}

	return nil
}

// HasUnresolvedEvent reports whether an unresolved event exists for
// (instance, rule).
func (r *EscalationRepository) HasUnresolvedEvent(ctx context.Context, instanceID, ruleID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM escalation_events
			WHERE workflow_instance_id = $1 AND rule_id = $2 AND resolved_at IS NULL
		)
	`

	var exists bool

	err := r.db.QueryRowContext(ctx, query, instanceID, ruleID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query unresolved events: %w", err)
	}

	return exists, nil
}

// InsertEvent inserts a breach event. The partial unique index guarantees at
// most one unresolved event per (instance, rule) even under concurrent scans.
func (r *EscalationRepository) InsertEvent(ctx context.Context, event *models.EscalationEvent) error {
	if event.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate event ID: %w", err)
		}

		event.ID = id.String()
	}

	if event.EscalatedAt.IsZero() {
		event.EscalatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO escalation_events (id, workflow_instance_id, rule_id, contract_id,
			stage_name, tier, escalated_at, resolved_at, resolved_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.InstanceID,
		event.RuleID,
		event.ContractID,
		event.StageName,
		event.Tier,
		event.EscalatedAt,
		event.ResolvedAt,
		event.ResolvedBy,
	)
	if err != nil {
		if isUniqueViolation(err, "uq_escalation_events_unresolved") {
			return persistence.NewStoreError("InsertEvent", "escalation_event", event.InstanceID, persistence.ErrDuplicateEscalationEvent)
		}

		return fmt.Errorf("failed to insert escalation event: %w", err)
	}

	return nil
}

// ListUnresolvedEvents returns unresolved events newest first, plus the
// unpaged total count.
func (r *EscalationRepository) ListUnresolvedEvents(ctx context.Context, limit, offset int) ([]*models.EscalationEvent, int64, error) {
	var total int64

	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM escalation_events WHERE resolved_at IS NULL").Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count unresolved events: %w", err)
	}

	query := `
		SELECT id, workflow_instance_id, rule_id, contract_id, stage_name, tier, escalated_at, resolved_at, resolved_by
		FROM escalation_events
		WHERE resolved_at IS NULL
		ORDER BY escalated_at DESC
	`

	args := make([]any, 0, 2)

	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query unresolved events: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	events := make([]*models.EscalationEvent, 0)

	for rows.Next() {
		event, err := r.scanEvent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan escalation event: %w", err)
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating escalation events: %w", err)
	}

	return events, total, nil
}

// ResolveEvent marks an unresolved event as resolved and returns it.
func (r *EscalationRepository) ResolveEvent(ctx context.Context, eventID, resolvedBy string, resolvedAt time.Time) (*models.EscalationEvent, error) {
	query := `
		UPDATE escalation_events
		SET resolved_at = $2, resolved_by = $3
		WHERE id = $1 AND resolved_at IS NULL
		RETURNING id, workflow_instance_id, rule_id, contract_id, stage_name, tier, escalated_at, resolved_at, resolved_by
	`

	event, err := r.scanEvent(r.db.QueryRowContext(ctx, query, eventID, resolvedAt, resolvedBy))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("ResolveEvent", "escalation_event", eventID, persistence.ErrEventNotFound)
		}

		return nil, fmt.Errorf("failed to resolve escalation event: %w", err)
	}

	return event, nil
}

func (r *EscalationRepository) queryRules(ctx context.Context, query string, args ...any) ([]*models.EscalationRule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query escalation rules: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	rules := make([]*models.EscalationRule, 0)

	for rows.Next() {
		var (
			rule                       models.EscalationRule
			escalateRole, escalateUser sql.NullString
		)

		err := rows.Scan(
			&rule.ID,
			&rule.TemplateID,
			&rule.StageName,
			&rule.Tier,
			&rule.SLABreachHours,
			&escalateRole,
			&escalateUser,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan escalation rule: %w", err)
		}

		rule.EscalateToRole = escalateRole.String
		rule.EscalateToUserID = escalateUser.String

		rules = append(rules, &rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating escalation rules: %w", err)
	}

	return rules, nil
}

func (r *EscalationRepository) scanEvent(scanner interface {
	Scan(dest ...any) error
}) (*models.EscalationEvent, error) {
	var (
		event      models.EscalationEvent
		resolvedBy sql.NullString
	)

	err := scanner.Scan(
		&event.ID,
		&event.InstanceID,
		&event.RuleID,
		&event.ContractID,
		&event.StageName,
		&event.Tier,
		&event.EscalatedAt,
		&event.ResolvedAt,
		&resolvedBy,
	)
	if err != nil {
		return nil, err
	}

	event.ResolvedBy = resolvedBy.String

	return &event, nil
}
