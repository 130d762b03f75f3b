package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ccrs/workflow-engine/pkg/audit"
	"github.com/ccrs/workflow-engine/pkg/eventbus"
	"github.com/ccrs/workflow-engine/pkg/events"
	"github.com/ccrs/workflow-engine/pkg/models"
	"github.com/ccrs/workflow-engine/pkg/otelhelper"
	"github.com/ccrs/workflow-engine/pkg/persistence"
)

// ActionInput is what an actor submits against a stage.
type ActionInput struct {
	Action    models.StageActionType `json:"action"    validate:"required,oneof=approve reject rework"`
	Comment   string                 `json:"comment,omitempty"`
	Artifacts map[string]any         `json:"artifacts,omitempty"`
}

// Engine is the workflow instance state machine. It starts instances from
// published template snapshots, records gated stage actions and drives
// instances to completion. All state lives in the persistence layer; the
// engine keeps no cross-request memory.
type Engine struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventPublisher
	audit       audit.Logger
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewEngine creates a workflow engine. The event bus may be nil for callers
// that do not publish lifecycle events (tests, one-shot tools).
func NewEngine(p persistence.Persistence, bus eventbus.EventPublisher, auditLogger audit.Logger, logger *slog.Logger) *Engine {
	return &Engine{
		persistence: p,
		eventBus:    bus,
		audit:       auditLogger,
		logger:      logger.With("module", "workflow_engine"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the engine's time source. Tests use this to make
// dwell-time and completion timestamps deterministic.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now

	return e
}

// WithTracer enables span creation for instance starts and stage actions.
func (e *Engine) WithTracer(tracer trace.Tracer) *Engine {
	e.tracer = tracer

	return e
}

// startSpan opens a span when tracing is configured; otherwise the call is a
// no-op and the returned span is nil.
func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if e.tracer == nil {
		return ctx, nil
	}

	return otelhelper.StartSpan(ctx, e.tracer, name, attrs...)
}

func endSpan(span trace.Span, err error) {
	if span == nil {
		return
	}

	if err != nil {
		otelhelper.SetError(span, err)
	}

	span.End()
}

// Start begins a workflow instance for a contract from a published template.
// The template's current version is pinned on the instance; the first
// declared stage becomes the current stage, mirrored onto the contract.
func (e *Engine) Start(ctx context.Context, contractID, templateID string, actor *models.Actor) (*models.WorkflowInstance, error) {
	ctx, span := e.startSpan(ctx, "workflow.instance.start",
		attribute.String(otelhelper.ContractIDKey, contractID),
		attribute.String(otelhelper.TemplateIDKey, templateID),
		attribute.String(otelhelper.ActorIDKey, actor.ID))

	instance, err := e.start(ctx, contractID, templateID, actor)
	endSpan(span, err)

	return instance, err
}

func (e *Engine) start(ctx context.Context, contractID, templateID string, actor *models.Actor) (*models.WorkflowInstance, error) {
	template, err := e.persistence.TemplateRepository().GetByID(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	if template.Status != models.TemplateStatusPublished {
		return nil, ErrTemplateNotPublished
	}

	version, err := e.persistence.TemplateRepository().GetVersion(ctx, template.ID, template.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to get template version: %w", err)
	}

	first := version.FirstStage()
	if first == nil {
		return nil, ErrTemplateHasNoStages
	}

	existing, err := e.persistence.InstanceRepository().GetActiveByContract(ctx, contractID)
	if err != nil && !persistence.IsInstanceNotFound(err) {
		return nil, fmt.Errorf("failed to check active instance: %w", err)
	}

	if existing != nil {
		return nil, ErrActiveInstanceExists
	}

	instance := &models.WorkflowInstance{
		ID:              uuid.New().String(),
		ContractID:      contractID,
		TemplateID:      template.ID,
		TemplateVersion: version.Version,
		CurrentStage:    first.Name,
		State:           models.InstanceStateActive,
		StartedAt:       e.now(),
	}

	if err := e.persistence.InstanceRepository().Save(ctx, instance); err != nil {
		// A concurrent Start for the same contract can slip past the read
		// above; the store's uniqueness guard is the backstop.
		if persistence.IsDuplicateActiveInstance(err) {
			return nil, ErrActiveInstanceExists
		}

		return nil, fmt.Errorf("failed to save instance: %w", err)
	}

	if err := e.mirrorContractState(ctx, contractID, first.Name); err != nil {
		return nil, err
	}

	e.audit.Record(ctx, "workflow_instance.start", "workflow_instance", instance.ID, actor, map[string]any{
		"contract_id":      contractID,
		"template_id":      template.ID,
		"template_version": version.Version,
	})

	e.publish(ctx, contractID, events.InstanceStarted{
		BaseEvent:       events.NewBaseEvent(events.InstanceStartedEvent, contractID),
		InstanceID:      instance.ID,
		TemplateID:      template.ID,
		TemplateVersion: version.Version,
		FirstStage:      first.Name,
	})

	e.logger.InfoContext(ctx, "Workflow instance started",
		"instance_id", instance.ID,
		"contract_id", contractID,
		"template_id", template.ID,
		"template_version", version.Version,
		"first_stage", first.Name)

	return instance, nil
}

// RecordAction applies one actor action to an instance. The submitted stage
// must equal the instance's current stage (stale clients are rejected), the
// actor must pass the authorization gate, and the transition resolver decides
// the next stage or completion. The action is always appended to the history
// log, including on the completing action.
func (e *Engine) RecordAction(ctx context.Context, instanceID, stageName string, input ActionInput, actor *models.Actor) (*models.StageAction, error) {
	ctx, span := e.startSpan(ctx, "workflow.stage.action",
		attribute.String(otelhelper.InstanceIDKey, instanceID),
		attribute.String(otelhelper.StageNameKey, stageName),
		attribute.String(otelhelper.ActionKey, string(input.Action)),
		attribute.String(otelhelper.ActorIDKey, actor.ID))

	action, err := e.recordAction(ctx, instanceID, stageName, input, actor)
	endSpan(span, err)

	return action, err
}

func (e *Engine) recordAction(ctx context.Context, instanceID, stageName string, input ActionInput, actor *models.Actor) (*models.StageAction, error) {
	if !input.Action.Valid() {
		return nil, ErrInvalidAction
	}

	instance, err := e.persistence.InstanceRepository().GetByID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	if !instance.IsActive() {
		return nil, ErrInstanceCompleted
	}

	if instance.CurrentStage != stageName {
		return nil, ErrStageMismatch
	}

	version, err := e.persistence.TemplateRepository().GetVersion(ctx, instance.TemplateID, instance.TemplateVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to get pinned template version: %w", err)
	}

	stage := version.StageByName(stageName)
	if stage == nil {
		return nil, ErrUnknownStage
	}

	contract, err := e.persistence.ContractRepository().GetRef(ctx, instance.ContractID)
	if err != nil {
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}

	signingRows, err := e.loadSigningAuthority(ctx, stage, contract)
	if err != nil {
		return nil, err
	}

	if !CanAct(stage, actor, signingRows) {
		return nil, ErrNotAuthorized
	}

	nextStage, ok := NextStage(version.Stages, stageName, input.Action)

	completed := !ok && input.Action == models.ActionApprove

	mirroredState := nextStage
	if completed {
		now := e.now()
		instance.State = models.InstanceStateCompleted
		instance.CompletedAt = &now
		mirroredState = models.ContractWorkflowStateCompleted
	} else {
		instance.CurrentStage = nextStage
	}

	// Conditional write: only one of two concurrent actions against the same
	// stage can move the instance; the loser sees the row already advanced
	// and is rejected like any other stale submission.
	if err := e.persistence.InstanceRepository().AdvanceFromStage(ctx, instance, stageName); err != nil {
		if persistence.IsStaleInstanceStage(err) {
			return nil, ErrStageMismatch
		}

		return nil, fmt.Errorf("failed to advance instance: %w", err)
	}

	if err := e.mirrorContractState(ctx, instance.ContractID, mirroredState); err != nil {
		return nil, err
	}

	action := &models.StageAction{
		ID:         uuid.New().String(),
		InstanceID: instance.ID,
		StageName:  stageName,
		Action:     input.Action,
		ActorID:    actor.ID,
		ActorEmail: actor.Email,
		Comment:    input.Comment,
		Artifacts:  input.Artifacts,
		CreatedAt:  e.now(),
	}

	// The history append must succeed: the log is authoritative for both the
	// UI and dwell-time computation. A stage advance without its log row is
	// surfaced as an error rather than silently committed.
	if err := e.persistence.ActionRepository().Append(ctx, action); err != nil {
		return nil, fmt.Errorf("stage advanced but action log append failed: %w", err)
	}

	e.audit.Record(ctx, "workflow_stage.action", "workflow_stage_action", action.ID, actor, map[string]any{
		"instance_id": instance.ID,
		"stage_name":  stageName,
		"action":      string(input.Action),
	})

	if completed {
		e.publish(ctx, instance.ContractID, events.InstanceCompleted{
			BaseEvent:  events.NewBaseEvent(events.InstanceCompletedEvent, instance.ContractID),
			InstanceID: instance.ID,
			FinalStage: stageName,
		})
	} else {
		e.publish(ctx, instance.ContractID, events.StageActionRecorded{
			BaseEvent:  events.NewBaseEvent(events.StageActionRecordedEvent, instance.ContractID),
			InstanceID: instance.ID,
			StageName:  stageName,
			Action:     string(input.Action),
			ActorID:    actor.ID,
			NextStage:  nextStage,
		})
	}

	e.logger.InfoContext(ctx, "Stage action recorded",
		"instance_id", instance.ID,
		"stage_name", stageName,
		"action", input.Action,
		"actor_id", actor.ID,
		"completed", completed)

	return action, nil
}

// Instance returns one instance by id.
func (e *Engine) Instance(ctx context.Context, instanceID string) (*models.WorkflowInstance, error) {
	return e.persistence.InstanceRepository().GetByID(ctx, instanceID)
}

// ActiveInstance returns the contract's active instance, if any.
func (e *Engine) ActiveInstance(ctx context.Context, contractID string) (*models.WorkflowInstance, error) {
	return e.persistence.InstanceRepository().GetActiveByContract(ctx, contractID)
}

// History returns the instance's full action log, oldest first.
func (e *Engine) History(ctx context.Context, instanceID string) ([]*models.StageAction, error) {
	return e.persistence.ActionRepository().ListByInstance(ctx, instanceID)
}

// loadSigningAuthority fetches signing-authority rows scoped to the
// contract. Non-signing stages never consult the table, so the lookup is
// skipped for them.
func (e *Engine) loadSigningAuthority(ctx context.Context, stage *models.Stage, contract *models.ContractRef) ([]*models.SigningAuthority, error) {
	if stage.Type != models.StageTypeSigning || contract.EntityID == "" {
		return nil, nil
	}

	rows, err := e.persistence.SigningAuthorityRepository().ListForEntity(ctx, contract.EntityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load signing authority: %w", err)
	}

	return FilterSigningAuthority(rows, contract), nil
}

func (e *Engine) mirrorContractState(ctx context.Context, contractID, state string) error {
	if err := e.persistence.ContractRepository().UpdateWorkflowState(ctx, contractID, state); err != nil {
		return fmt.Errorf("failed to mirror contract workflow state: %w", err)
	}

	return nil
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.eventBus == nil {
		return
	}

	if err := e.eventBus.Publish(ctx, key, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish workflow event",
			"event_type", event.GetType(),
			"error", err)
	}
}
