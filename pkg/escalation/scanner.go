// Package escalation implements the periodic SLA breach scanner for active
// workflow instances.
package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ccrs/workflow-engine/pkg/eventbus"
	"github.com/ccrs/workflow-engine/pkg/events"
	"github.com/ccrs/workflow-engine/pkg/models"
	"github.com/ccrs/workflow-engine/pkg/persistence"
	"github.com/google/uuid"
)

// Scanner walks every active instance, compares its dwell time in the
// current stage against the stage's escalation rules, and creates one
// escalation event plus one notification per newly breached rule. An
// unresolved event suppresses re-firing of its rule until it is resolved.
type Scanner struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventPublisher
	logger      *slog.Logger
	now         func() time.Time
}

// NewScanner creates an SLA escalation scanner.
func NewScanner(p persistence.Persistence, bus eventbus.EventPublisher, logger *slog.Logger) *Scanner {
	return &Scanner{
		persistence: p,
		eventBus:    bus,
		logger:      logger.With("module", "escalation_scanner"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the scanner's time source for tests.
func (s *Scanner) WithClock(now func() time.Time) *Scanner {
	s.now = now

	return s
}

// CheckSLABreaches runs one scan over all active instances and returns the
// number of escalation events created. A failure on one instance is logged
// and does not abort the batch.
func (s *Scanner) CheckSLABreaches(ctx context.Context) (int, error) {
	instances, err := s.persistence.InstanceRepository().ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active instances: %w", err)
	}

	created := 0
	now := s.now()

	for _, instance := range instances {
		count, err := s.scanInstance(ctx, instance, now)
		if err != nil {
			s.logger.ErrorContext(ctx, "SLA scan failed for instance",
				"instance_id", instance.ID,
				"error", err)

			continue
		}

		created += count
	}

	s.logger.InfoContext(ctx, "SLA check completed", "escalations_created", created)

	return created, nil
}

func (s *Scanner) scanInstance(ctx context.Context, instance *models.WorkflowInstance, now time.Time) (int, error) {
	if instance.TemplateID == "" || instance.CurrentStage == "" {
		return 0, nil
	}

	enteredAt, err := s.stageEnteredAt(ctx, instance)
	if err != nil {
		return 0, err
	}

	hoursInStage := now.Sub(enteredAt).Hours()

	rules, err := s.persistence.EscalationRepository().ListRulesByStage(ctx, instance.TemplateID, instance.CurrentStage)
	if err != nil {
		return 0, fmt.Errorf("failed to list escalation rules: %w", err)
	}

	created := 0

	for _, rule := range rules {
		if hoursInStage < rule.SLABreachHours {
			continue
		}

		fired, err := s.fireRule(ctx, instance, rule, hoursInStage, now)
		if err != nil {
			return created, err
		}

		if fired {
			created++
		}
	}

	return created, nil
}

// stageEnteredAt derives when the instance entered its current stage: the
// timestamp of the newest action in the log, or the instance start when no
// action has been recorded yet.
func (s *Scanner) stageEnteredAt(ctx context.Context, instance *models.WorkflowInstance) (time.Time, error) {
	latest, err := s.persistence.ActionRepository().LatestByInstance(ctx, instance.ID)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to load latest action: %w", err)
	}

	if latest == nil {
		return instance.StartedAt, nil
	}

	return latest.CreatedAt, nil
}

func (s *Scanner) fireRule(ctx context.Context, instance *models.WorkflowInstance, rule *models.EscalationRule, hoursInStage float64, now time.Time) (bool, error) {
	exists, err := s.persistence.EscalationRepository().HasUnresolvedEvent(ctx, instance.ID, rule.ID)
	if err != nil {
		return false, fmt.Errorf("failed to check unresolved event: %w", err)
	}

	if exists {
		return false, nil
	}

	event := &models.EscalationEvent{
		ID:          uuid.New().String(),
		InstanceID:  instance.ID,
		RuleID:      rule.ID,
		ContractID:  instance.ContractID,
		StageName:   instance.CurrentStage,
		Tier:        rule.Tier,
		EscalatedAt: now,
	}

	err = s.persistence.EscalationRepository().InsertEvent(ctx, event)
	if persistence.IsDuplicateEscalationEvent(err) {
		// A concurrent scan won the race; the store's uniqueness guard makes
		// that outcome equivalent to the exists-check above.
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to insert escalation event: %w", err)
	}

	notification := &models.Notification{
		ID:                  uuid.New().String(),
		RecipientEmail:      rule.EscalationTarget(),
		Channel:             models.ChannelEmail,
		Subject:             fmt.Sprintf("Escalation (Tier %d): SLA breach on stage '%s'", rule.Tier, instance.CurrentStage),
		Body:                fmt.Sprintf("Workflow instance %s has breached SLA at stage '%s'. Hours in stage: %.1f. Threshold: %gh.", instance.ID, instance.CurrentStage, hoursInStage, rule.SLABreachHours),
		RelatedResourceType: "workflow_instance",
		RelatedResourceID:   instance.ID,
		Status:              models.NotificationStatusPending,
		CreatedAt:           now,
	}

	if err := s.persistence.NotificationRepository().Insert(ctx, notification); err != nil {
		return true, fmt.Errorf("escalation event created but notification enqueue failed: %w", err)
	}

	if s.eventBus != nil {
		busEvent := events.EscalationCreated{
			BaseEvent:    events.NewBaseEvent(events.EscalationCreatedEvent, instance.ContractID),
			InstanceID:   instance.ID,
			RuleID:       rule.ID,
			StageName:    instance.CurrentStage,
			Tier:         rule.Tier,
			HoursInStage: hoursInStage,
		}
		if err := s.eventBus.Publish(ctx, instance.ContractID, busEvent); err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish escalation event", "error", err)
		}
	}

	s.logger.InfoContext(ctx, "Escalation created",
		"instance_id", instance.ID,
		"stage_name", instance.CurrentStage,
		"tier", rule.Tier,
		"hours_in_stage", hoursInStage)

	return true, nil
}
