// Package persistence provides the data storage abstraction for templates,
// instances, escalations, reminders and notifications.
package persistence

import (
	"context"
	"time"

	"github.com/ccrs/workflow-engine/pkg/models"
)

// TemplateListOptions filters and pages template listings.
type TemplateListOptions struct {
	Status       *models.TemplateStatus
	ContractType *models.ContractType
	RegionID     string
	EntityID     string
	ProjectID    string
	Limit        int
	Offset       int
}

// TemplateListResult is one page of templates plus the unpaged total.
type TemplateListResult struct {
	Templates  []*models.WorkflowTemplate
	TotalCount int64
}

// TemplateRepository stores mutable templates and their immutable published
// snapshots.
type TemplateRepository interface {
	GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error)
	List(ctx context.Context, opts TemplateListOptions) (*TemplateListResult, error)
	Save(ctx context.Context, template *models.WorkflowTemplate) error
	Delete(ctx context.Context, id string) error

	SaveVersion(ctx context.Context, version *models.TemplateVersion) error
	GetVersion(ctx context.Context, templateID string, version int) (*models.TemplateVersion, error)
}

// InstanceRepository stores workflow instances.
type InstanceRepository interface {
	GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error)
	GetActiveByContract(ctx context.Context, contractID string) (*models.WorkflowInstance, error)
	ListActive(ctx context.Context) ([]*models.WorkflowInstance, error)
	Save(ctx context.Context, instance *models.WorkflowInstance) error
	// AdvanceFromStage writes the instance's stage/state/completion fields only
	// if the stored row is still active on expectedStage. When a concurrent
	// action moved the instance first, it returns ErrStaleInstanceStage and
	// writes nothing. This is the compare-and-swap that keeps the action log
	// single-writer per instance.
	AdvanceFromStage(ctx context.Context, instance *models.WorkflowInstance, expectedStage string) error
}

// ActionRepository is the append-only stage action log, ordered by creation
// time per instance.
type ActionRepository interface {
	Append(ctx context.Context, action *models.StageAction) error
	ListByInstance(ctx context.Context, instanceID string) ([]*models.StageAction, error)
	LatestByInstance(ctx context.Context, instanceID string) (*models.StageAction, error)
}

// EscalationRepository stores SLA rules and breach events.
type EscalationRepository interface {
	ListRulesByTemplate(ctx context.Context, templateID string) ([]*models.EscalationRule, error)
	// ListRulesByStage returns rules for (template, stage) ordered by tier ascending.
	ListRulesByStage(ctx context.Context, templateID, stageName string) ([]*models.EscalationRule, error)
	SaveRule(ctx context.Context, rule *models.EscalationRule) error
	DeleteRule(ctx context.Context, ruleID string) error

	HasUnresolvedEvent(ctx context.Context, instanceID, ruleID string) (bool, error)
	InsertEvent(ctx context.Context, event *models.EscalationEvent) error
	ListUnresolvedEvents(ctx context.Context, limit, offset int) ([]*models.EscalationEvent, int64, error)
	ResolveEvent(ctx context.Context, eventID, resolvedBy string, resolvedAt time.Time) (*models.EscalationEvent, error)
}

// ReminderRepository stores contract reminders.
type ReminderRepository interface {
	GetByID(ctx context.Context, id string) (*models.Reminder, error)
	ListByContract(ctx context.Context, contractID string) ([]*models.Reminder, error)
	// ListDue returns active reminders with next_due_at <= now that have not
	// already fired in the current due cycle.
	ListDue(ctx context.Context, now time.Time) ([]*models.Reminder, error)
	Save(ctx context.Context, reminder *models.Reminder) error
	Delete(ctx context.Context, id string) error
}

// NotificationRepository is the notification sink plus the pending queue the
// delivery job drains.
type NotificationRepository interface {
	Insert(ctx context.Context, notification *models.Notification) error
	ListPending(ctx context.Context, limit int) ([]*models.Notification, error)
	List(ctx context.Context, recipientEmail, status string, limit, offset int) ([]*models.Notification, int64, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string, errorMessage string) error
}

// SigningAuthorityRepository looks up who may sign for an entity. Project
// scoping of the returned rows is applied by the authorization gate.
type SigningAuthorityRepository interface {
	ListForEntity(ctx context.Context, entityID string) ([]*models.SigningAuthority, error)
}

// ContractRepository is the narrow slice of the contract store the engine
// needs: reading scope fields and mirroring the workflow state.
type ContractRepository interface {
	GetRef(ctx context.Context, contractID string) (*models.ContractRef, error)
	UpdateWorkflowState(ctx context.Context, contractID, state string) error
}

// AuditEntry is one fire-and-forget audit record.
type AuditEntry struct {
	Action       string
	ResourceType string
	ResourceID   string
	ActorID      string
	Details      map[string]any
	CreatedAt    time.Time
}

// AuditRepository appends audit entries.
type AuditRepository interface {
	Append(ctx context.Context, entry *AuditEntry) error
}

// Persistence aggregates all repositories behind one handle.
type Persistence interface {
	TemplateRepository() TemplateRepository
	InstanceRepository() InstanceRepository
	ActionRepository() ActionRepository
	EscalationRepository() EscalationRepository
	ReminderRepository() ReminderRepository
	NotificationRepository() NotificationRepository
	SigningAuthorityRepository() SigningAuthorityRepository
	ContractRepository() ContractRepository
	AuditRepository() AuditRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
