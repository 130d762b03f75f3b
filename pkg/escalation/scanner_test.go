package escalation

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccrs/workflow-engine/pkg/models"
	"github.com/ccrs/workflow-engine/pkg/persistence/memory"
)

func setupScanner(t *testing.T, now time.Time) (*Scanner, *memory.Persistence) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	p := memory.NewPersistence()

	scanner := NewScanner(p, nil, logger).WithClock(func() time.Time { return now })

	return scanner, p
}

func seedInstance(t *testing.T, p *memory.Persistence, id string, startedAt time.Time) *models.WorkflowInstance {
	t.Helper()

	instance := &models.WorkflowInstance{
		ID:              id,
		ContractID:      "contract-" + id,
		TemplateID:      "tpl-1",
		TemplateVersion: 1,
		CurrentStage:    "Legal Review",
		State:           models.InstanceStateActive,
		StartedAt:       startedAt,
	}
	require.NoError(t, p.InstanceRepository().Save(context.Background(), instance))

	return instance
}

func seedRule(t *testing.T, p *memory.Persistence, id string, tier int, hours float64) *models.EscalationRule {
	t.Helper()

	rule := &models.EscalationRule{
		ID:             id,
		TemplateID:     "tpl-1",
		StageName:      "Legal Review",
		Tier:           tier,
		SLABreachHours: hours,
		EscalateToRole: "Legal Lead",
	}
	require.NoError(t, p.EscalationRepository().SaveRule(context.Background(), rule))

	return rule
}

func unresolvedEvents(t *testing.T, p *memory.Persistence) []*models.EscalationEvent {
	t.Helper()

	events, _, err := p.EscalationRepository().ListUnresolvedEvents(context.Background(), 100, 0)
	require.NoError(t, err)

	return events
}

func TestScanner_FiresOnBreach(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	scanner, p := setupScanner(t, now)

	seedInstance(t, p, "inst-1", now.Add(-30*time.Hour))
	seedRule(t, p, "rule-1", 1, 24)

	created, err := scanner.CheckSLABreaches(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	events := unresolvedEvents(t, p)
	require.Len(t, events, 1)
	assert.Equal(t, "inst-1", events[0].InstanceID)
	assert.Equal(t, "rule-1", events[0].RuleID)
	assert.Equal(t, "Legal Review", events[0].StageName)
	assert.Equal(t, 1, events[0].Tier)
	assert.Equal(t, now, events[0].EscalatedAt)

	// One notification per event, addressed at the rule's target.
	pending, err := p.NotificationRepository().ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Legal Lead", pending[0].RecipientEmail)
	assert.Equal(t, models.ChannelEmail, pending[0].Channel)
	assert.Equal(t, "inst-1", pending[0].RelatedResourceID)
}

func TestScanner_NoBreachBelowThreshold(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	scanner, p := setupScanner(t, now)

	seedInstance(t, p, "inst-1", now.Add(-10*time.Hour))
	seedRule(t, p, "rule-1", 1, 24)

	created, err := scanner.CheckSLABreaches(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Empty(t, unresolvedEvents(t, p))
}

func TestScanner_SecondScanIsIdempotent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	scanner, p := setupScanner(t, now)

	seedInstance(t, p, "inst-1", now.Add(-30*time.Hour))
	seedRule(t, p, "rule-1", 1, 24)

	created, err := scanner.CheckSLABreaches(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	// The unresolved event suppresses re-firing, even hours later.
	scanner.WithClock(func() time.Time { return now.Add(6 * time.Hour) })

	created, err = scanner.CheckSLABreaches(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Len(t, unresolvedEvents(t, p), 1)
}

func TestScanner_RefiresAfterResolution(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	scanner, p := setupScanner(t, now)

	seedInstance(t, p, "inst-1", now.Add(-30*time.Hour))
	seedRule(t, p, "rule-1", 1, 24)

	_, err := scanner.CheckSLABreaches(ctx)
	require.NoError(t, err)

	events := unresolvedEvents(t, p)
	require.Len(t, events, 1)

	_, err = p.EscalationRepository().ResolveEvent(ctx, events[0].ID, "admin-1", now)
	require.NoError(t, err)

	// Still breached on the next scan: a fresh event fires.
	created, err := scanner.CheckSLABreaches(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, created)
}

func TestScanner_TiersFireIndependently(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	scanner, p := setupScanner(t, now)

	seedInstance(t, p, "inst-1", now.Add(-30*time.Hour))
	seedRule(t, p, "tier-1", 1, 24)
	seedRule(t, p, "tier-2", 2, 48)
	seedRule(t, p, "tier-3", 3, 72)

	// 30h in stage: only tier 1 has been crossed.
	created, err := scanner.CheckSLABreaches(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	// 50h in: tier 2 joins, tier 1 stays suppressed.
	scanner.WithClock(func() time.Time { return now.Add(20 * time.Hour) })

	created, err = scanner.CheckSLABreaches(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	events := unresolvedEvents(t, p)
	require.Len(t, events, 2)

	tiers := map[int]bool{}
	for _, event := range events {
		tiers[event.Tier] = true
	}

	assert.True(t, tiers[1])
	assert.True(t, tiers[2])
	assert.False(t, tiers[3])
}

func TestScanner_DwellTimeResetsOnStageAction(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	scanner, p := setupScanner(t, now)

	instance := seedInstance(t, p, "inst-1", now.Add(-100*time.Hour))
	seedRule(t, p, "rule-1", 1, 24)

	// An action 2h ago restarts the stage clock regardless of instance age.
	require.NoError(t, p.ActionRepository().Append(ctx, &models.StageAction{
		ID:         "act-1",
		InstanceID: instance.ID,
		StageName:  "Draft",
		Action:     models.ActionApprove,
		ActorID:    "u-1",
		CreatedAt:  now.Add(-2 * time.Hour),
	}))

	created, err := scanner.CheckSLABreaches(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestScanner_SkipsCompletedInstances(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	scanner, p := setupScanner(t, now)

	completedAt := now.Add(-1 * time.Hour)
	instance := seedInstance(t, p, "inst-1", now.Add(-100*time.Hour))
	instance.State = models.InstanceStateCompleted
	instance.CompletedAt = &completedAt
	require.NoError(t, p.InstanceRepository().Save(ctx, instance))

	seedRule(t, p, "rule-1", 1, 24)

	created, err := scanner.CheckSLABreaches(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestScanner_ExactThresholdCountsAsBreach(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	scanner, p := setupScanner(t, now)

	seedInstance(t, p, "inst-1", now.Add(-24*time.Hour))
	seedRule(t, p, "rule-1", 1, 24)

	created, err := scanner.CheckSLABreaches(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, created)
}

func TestScanner_NotificationPrefersUserOverRole(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	scanner, p := setupScanner(t, now)

	seedInstance(t, p, "inst-1", now.Add(-30*time.Hour))

	rule := seedRule(t, p, "rule-1", 1, 24)
	rule.EscalateToUserID = "legal-lead-1"
	require.NoError(t, p.EscalationRepository().SaveRule(ctx, rule))

	_, err := scanner.CheckSLABreaches(ctx)
	require.NoError(t, err)

	pending, err := p.NotificationRepository().ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "legal-lead-1", pending[0].RecipientEmail)
}
