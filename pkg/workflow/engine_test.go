package workflow

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccrs/workflow-engine/pkg/audit"
	"github.com/ccrs/workflow-engine/pkg/models"
	"github.com/ccrs/workflow-engine/pkg/persistence/memory"
)

var (
	draftActor   = &models.Actor{ID: "cm-1", Email: "cm@example.com", Roles: []string{"Contract Manager"}}
	legalActor   = &models.Actor{ID: "legal-1", Email: "legal@example.com", Roles: []string{"Legal"}}
	financeActor = &models.Actor{ID: "fin-1", Email: "fin@example.com", Roles: []string{"Finance Director"}}
	signerActor  = &models.Actor{ID: "signer-1", Email: "md@example.com"}
)

func setupEngine(t *testing.T) (*Engine, *memory.Persistence) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	p := memory.NewPersistence()

	publishedAt := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	template := &models.WorkflowTemplate{
		ID:           "tpl-1",
		Name:         "Commercial Standard",
		ContractType: models.ContractTypeCommercial,
		Stages:       validStages(),
		Status:       models.TemplateStatusPublished,
		Version:      1,
		PublishedAt:  &publishedAt,
	}
	require.NoError(t, p.TemplateRepository().Save(context.Background(), template))
	require.NoError(t, p.TemplateRepository().SaveVersion(context.Background(), &models.TemplateVersion{
		TemplateID:  template.ID,
		Version:     1,
		Stages:      template.Stages,
		PublishedAt: publishedAt,
	}))

	p.SeedContract(&models.ContractRef{ID: "contract-1", Title: "Supply Agreement", EntityID: "entity-1"})
	p.SeedSigningAuthority(&models.SigningAuthority{ID: "sa-1", EntityID: "entity-1", UserID: signerActor.ID})

	return NewEngine(p, nil, audit.Nop{}, logger), p
}

func TestEngine_Start(t *testing.T) {
	ctx := context.Background()
	engine, p := setupEngine(t)

	instance, err := engine.Start(ctx, "contract-1", "tpl-1", draftActor)
	require.NoError(t, err)

	assert.NotEmpty(t, instance.ID)
	assert.Equal(t, "contract-1", instance.ContractID)
	assert.Equal(t, "tpl-1", instance.TemplateID)
	assert.Equal(t, 1, instance.TemplateVersion)
	assert.Equal(t, "Draft", instance.CurrentStage)
	assert.Equal(t, models.InstanceStateActive, instance.State)

	contract, err := p.ContractRepository().GetRef(ctx, "contract-1")
	require.NoError(t, err)
	assert.Equal(t, "Draft", contract.WorkflowState)
}

func TestEngine_Start_RejectsDraftTemplate(t *testing.T) {
	ctx := context.Background()
	engine, p := setupEngine(t)

	template, err := p.TemplateRepository().GetByID(ctx, "tpl-1")
	require.NoError(t, err)

	template.Status = models.TemplateStatusDraft
	require.NoError(t, p.TemplateRepository().Save(ctx, template))

	_, err = engine.Start(ctx, "contract-1", "tpl-1", draftActor)
	assert.ErrorIs(t, err, ErrTemplateNotPublished)
}

func TestEngine_Start_RejectsSecondActiveInstance(t *testing.T) {
	ctx := context.Background()
	engine, _ := setupEngine(t)

	_, err := engine.Start(ctx, "contract-1", "tpl-1", draftActor)
	require.NoError(t, err)

	_, err = engine.Start(ctx, "contract-1", "tpl-1", draftActor)
	assert.ErrorIs(t, err, ErrActiveInstanceExists)
}

func TestEngine_RecordAction_AdvancesThroughStages(t *testing.T) {
	ctx := context.Background()
	engine, _ := setupEngine(t)

	instance, err := engine.Start(ctx, "contract-1", "tpl-1", draftActor)
	require.NoError(t, err)

	action, err := engine.RecordAction(ctx, instance.ID, "Draft", ActionInput{
		Action:  models.ActionApprove,
		Comment: "ready for review",
	}, draftActor)
	require.NoError(t, err)

	assert.Equal(t, "Draft", action.StageName)
	assert.Equal(t, models.ActionApprove, action.Action)
	assert.Equal(t, draftActor.ID, action.ActorID)

	current, err := engine.Instance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, "Legal Review", current.CurrentStage)
}

func TestEngine_RecordAction_StageMismatch(t *testing.T) {
	ctx := context.Background()
	engine, _ := setupEngine(t)

	instance, err := engine.Start(ctx, "contract-1", "tpl-1", draftActor)
	require.NoError(t, err)

	// A stale client still sees the old stage.
	_, err = engine.RecordAction(ctx, instance.ID, "Legal Review", ActionInput{Action: models.ActionApprove}, legalActor)
	assert.ErrorIs(t, err, ErrStageMismatch)
}

func TestEngine_RecordAction_UnauthorizedActorForbidden(t *testing.T) {
	ctx := context.Background()
	engine, _ := setupEngine(t)

	instance, err := engine.Start(ctx, "contract-1", "tpl-1", draftActor)
	require.NoError(t, err)

	intruder := &models.Actor{ID: "intruder", Roles: []string{"Viewer"}}

	_, err = engine.RecordAction(ctx, instance.ID, "Draft", ActionInput{Action: models.ActionApprove}, intruder)
	assert.ErrorIs(t, err, ErrNotAuthorized)
	assert.True(t, IsAuthorizationError(err))
	assert.False(t, IsValidationError(err))
}

func TestEngine_RecordAction_RejectWalksBack(t *testing.T) {
	ctx := context.Background()
	engine, _ := setupEngine(t)

	instance, err := engine.Start(ctx, "contract-1", "tpl-1", draftActor)
	require.NoError(t, err)

	_, err = engine.RecordAction(ctx, instance.ID, "Draft", ActionInput{Action: models.ActionApprove}, draftActor)
	require.NoError(t, err)

	_, err = engine.RecordAction(ctx, instance.ID, "Legal Review", ActionInput{
		Action:  models.ActionReject,
		Comment: "missing indemnity clause",
	}, legalActor)
	require.NoError(t, err)

	current, err := engine.Instance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, "Draft", current.CurrentStage)
	assert.Equal(t, models.InstanceStateActive, current.State)
}

func TestEngine_RecordAction_RejectAtFirstStageStaysPut(t *testing.T) {
	ctx := context.Background()
	engine, _ := setupEngine(t)

	instance, err := engine.Start(ctx, "contract-1", "tpl-1", draftActor)
	require.NoError(t, err)

	_, err = engine.RecordAction(ctx, instance.ID, "Draft", ActionInput{Action: models.ActionRework}, draftActor)
	require.NoError(t, err)

	current, err := engine.Instance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, "Draft", current.CurrentStage)

	// The no-op move is still logged.
	history, err := engine.History(ctx, instance.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Equal(t, models.ActionRework, history[0].Action)
}

func TestEngine_FullLifecycleToCompletion(t *testing.T) {
	ctx := context.Background()
	engine, p := setupEngine(t)

	completedAt := time.Date(2026, 3, 15, 17, 0, 0, 0, time.UTC)
	engine.WithClock(func() time.Time { return completedAt })

	instance, err := engine.Start(ctx, "contract-1", "tpl-1", draftActor)
	require.NoError(t, err)

	steps := []struct {
		stage string
		actor *models.Actor
	}{
		{"Draft", draftActor},
		{"Legal Review", legalActor},
		{"Approval", financeActor},
		{"Signing", signerActor},
	}

	for _, step := range steps {
		_, err = engine.RecordAction(ctx, instance.ID, step.stage, ActionInput{Action: models.ActionApprove}, step.actor)
		require.NoError(t, err, "approve at %s", step.stage)
	}

	final, err := engine.Instance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStateCompleted, final.State)
	require.NotNil(t, final.CompletedAt)
	assert.Equal(t, completedAt, *final.CompletedAt)

	contract, err := p.ContractRepository().GetRef(ctx, "contract-1")
	require.NoError(t, err)
	assert.Equal(t, models.ContractWorkflowStateCompleted, contract.WorkflowState)

	// The completing approve is logged like any other action.
	history, err := engine.History(ctx, instance.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, "Signing", history[3].StageName)

	// And the terminal instance refuses further actions.
	_, err = engine.RecordAction(ctx, instance.ID, "Signing", ActionInput{Action: models.ActionApprove}, signerActor)
	assert.ErrorIs(t, err, ErrInstanceCompleted)
}

func TestEngine_SigningStageRequiresSigningAuthority(t *testing.T) {
	ctx := context.Background()
	engine, _ := setupEngine(t)

	instance, err := engine.Start(ctx, "contract-1", "tpl-1", draftActor)
	require.NoError(t, err)

	for _, step := range []struct {
		stage string
		actor *models.Actor
	}{
		{"Draft", draftActor},
		{"Legal Review", legalActor},
		{"Approval", financeActor},
	} {
		_, err = engine.RecordAction(ctx, instance.ID, step.stage, ActionInput{Action: models.ActionApprove}, step.actor)
		require.NoError(t, err)
	}

	// The finance director approved earlier stages but holds no signing
	// authority for this entity.
	_, err = engine.RecordAction(ctx, instance.ID, "Signing", ActionInput{Action: models.ActionApprove}, financeActor)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = engine.RecordAction(ctx, instance.ID, "Signing", ActionInput{Action: models.ActionApprove}, signerActor)
	require.NoError(t, err)
}

func TestEngine_RecordAction_InvalidAction(t *testing.T) {
	ctx := context.Background()
	engine, _ := setupEngine(t)

	instance, err := engine.Start(ctx, "contract-1", "tpl-1", draftActor)
	require.NoError(t, err)

	_, err = engine.RecordAction(ctx, instance.ID, "Draft", ActionInput{Action: "escalate"}, draftActor)
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestEngine_PinnedVersionSurvivesRepublish(t *testing.T) {
	ctx := context.Background()
	engine, p := setupEngine(t)

	instance, err := engine.Start(ctx, "contract-1", "tpl-1", draftActor)
	require.NoError(t, err)

	// Republish with a different graph; the running instance keeps v1.
	template, err := p.TemplateRepository().GetByID(ctx, "tpl-1")
	require.NoError(t, err)

	template.Version = 2
	template.Stages = []models.Stage{
		{Name: "Fast Approval", Type: models.StageTypeApproval, Approvers: []models.PrincipalRef{models.RoleRef("Legal")}, AllowedTransitions: []string{"Signing"}},
		{Name: "Signing", Type: models.StageTypeSigning, AllowedTransitions: []string{}},
	}
	require.NoError(t, p.TemplateRepository().Save(ctx, template))
	require.NoError(t, p.TemplateRepository().SaveVersion(ctx, &models.TemplateVersion{
		TemplateID: "tpl-1",
		Version:    2,
		Stages:     template.Stages,
	}))

	_, err = engine.RecordAction(ctx, instance.ID, "Draft", ActionInput{Action: models.ActionApprove}, draftActor)
	require.NoError(t, err)

	current, err := engine.Instance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, current.TemplateVersion)
	assert.Equal(t, "Legal Review", current.CurrentStage)
}

func TestEngine_HistoryIsAppendOnlyAndOrdered(t *testing.T) {
	ctx := context.Background()
	engine, _ := setupEngine(t)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	engine.WithClock(func() time.Time {
		tick++

		return base.Add(time.Duration(tick) * time.Minute)
	})

	instance, err := engine.Start(ctx, "contract-1", "tpl-1", draftActor)
	require.NoError(t, err)

	_, err = engine.RecordAction(ctx, instance.ID, "Draft", ActionInput{Action: models.ActionApprove}, draftActor)
	require.NoError(t, err)
	_, err = engine.RecordAction(ctx, instance.ID, "Legal Review", ActionInput{Action: models.ActionReject}, legalActor)
	require.NoError(t, err)
	_, err = engine.RecordAction(ctx, instance.ID, "Draft", ActionInput{Action: models.ActionApprove}, draftActor)
	require.NoError(t, err)

	history, err := engine.History(ctx, instance.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)

	for i := 1; i < len(history); i++ {
		assert.True(t, history[i].CreatedAt.After(history[i-1].CreatedAt))
	}

	assert.Equal(t, []string{"Draft", "Legal Review", "Draft"}, []string{
		history[0].StageName, history[1].StageName, history[2].StageName,
	})
}

func TestEngine_ConcurrentApprovesRecordOnce(t *testing.T) {
	ctx := context.Background()

	// Two racing approves against the same stage: exactly one may win, the
	// other must be rejected as stale, and the log must hold a single row.
	for range 50 {
		engine, _ := setupEngine(t)

		instance, err := engine.Start(ctx, "contract-1", "tpl-1", draftActor)
		require.NoError(t, err)

		errs := make(chan error, 2)

		var wg sync.WaitGroup
		for range 2 {
			wg.Add(1)

			go func() {
				defer wg.Done()

				_, err := engine.RecordAction(ctx, instance.ID, "Draft", ActionInput{Action: models.ActionApprove}, draftActor)
				errs <- err
			}()
		}

		wg.Wait()
		close(errs)

		accepted := 0
		for err := range errs {
			if err == nil {
				accepted++
			} else {
				assert.ErrorIs(t, err, ErrStageMismatch)
			}
		}

		require.Equal(t, 1, accepted)

		history, err := engine.History(ctx, instance.ID)
		require.NoError(t, err)
		require.Len(t, history, 1)

		current, err := engine.Instance(ctx, instance.ID)
		require.NoError(t, err)
		assert.Equal(t, "Legal Review", current.CurrentStage)
	}
}

func TestEngine_ConcurrentStartsCreateOneInstance(t *testing.T) {
	ctx := context.Background()
	engine, p := setupEngine(t)

	errs := make(chan error, 2)

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := engine.Start(ctx, "contract-1", "tpl-1", draftActor)
			errs <- err
		}()
	}

	wg.Wait()
	close(errs)

	started := 0
	for err := range errs {
		if err == nil {
			started++
		} else {
			assert.ErrorIs(t, err, ErrActiveInstanceExists)
		}
	}

	require.Equal(t, 1, started)

	active, err := p.InstanceRepository().ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}
