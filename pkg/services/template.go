package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ccrs/workflow-engine/pkg/audit"
	"github.com/ccrs/workflow-engine/pkg/eventbus"
	"github.com/ccrs/workflow-engine/pkg/events"
	"github.com/ccrs/workflow-engine/pkg/log"
	"github.com/ccrs/workflow-engine/pkg/models"
	"github.com/ccrs/workflow-engine/pkg/persistence"
	"github.com/ccrs/workflow-engine/pkg/workflow"
	"github.com/google/uuid"
)

// Template is the authoring service for workflow templates: drafting,
// publishing and version snapshots.
type Template struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventPublisher
	audit       audit.Logger
	logger      *slog.Logger
}

// NewTemplate creates a new template service.
func NewTemplate(p persistence.Persistence, bus eventbus.EventPublisher, auditLogger audit.Logger) *Template {
	return &Template{
		persistence: p,
		eventBus:    bus,
		audit:       auditLogger,
		logger:      log.WithModule("template_service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Template) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	if err := s.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// CreateTemplateRequest is the input for creating a draft template.
type CreateTemplateRequest struct {
	Name         string              `json:"name"          validate:"required,min=3"`
	ContractType models.ContractType `json:"contract_type" validate:"required,oneof=Commercial Merchant"`
	RegionID     *string             `json:"region_id,omitempty"`
	EntityID     *string             `json:"entity_id,omitempty"`
	ProjectID    *string             `json:"project_id,omitempty"`
	Stages       []models.Stage      `json:"stages"`
	CreatedBy    string              `json:"-"`
}

// Create stores a new template in draft status at version 1. Structural
// validation is deferred to publish so authors can save partial drafts.
func (s *Template) Create(ctx context.Context, req CreateTemplateRequest, actor *models.Actor) (*models.WorkflowTemplate, error) {
	if req.Name == "" {
		return nil, ErrTemplateNameRequired
	}

	now := time.Now().UTC()
	template := &models.WorkflowTemplate{
		ID:           uuid.New().String(),
		Name:         req.Name,
		ContractType: req.ContractType,
		RegionID:     req.RegionID,
		EntityID:     req.EntityID,
		ProjectID:    req.ProjectID,
		Stages:       req.Stages,
		Status:       models.TemplateStatusDraft,
		Version:      1,
		CreatedBy:    req.CreatedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.persistence.TemplateRepository().Save(ctx, template); err != nil {
		return nil, fmt.Errorf("failed to save template: %w", err)
	}

	s.audit.Record(ctx, "workflow_template.create", "workflow_template", template.ID, actor, nil)

	return template, nil
}

// Get returns one template by id.
func (s *Template) Get(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	return s.persistence.TemplateRepository().GetByID(ctx, id)
}

// GetVersion returns a published immutable snapshot.
func (s *Template) GetVersion(ctx context.Context, templateID string, version int) (*models.TemplateVersion, error) {
	return s.persistence.TemplateRepository().GetVersion(ctx, templateID, version)
}

// List returns templates matching the filter.
func (s *Template) List(ctx context.Context, opts persistence.TemplateListOptions) (*persistence.TemplateListResult, error) {
	return s.persistence.TemplateRepository().List(ctx, opts)
}

// UpdateTemplateRequest carries partial template updates. Nil fields are
// left unchanged.
type UpdateTemplateRequest struct {
	Name         *string              `json:"name,omitempty" validate:"omitempty,min=3"`
	ContractType *models.ContractType `json:"contract_type,omitempty" validate:"omitempty,oneof=Commercial Merchant"`
	RegionID     *string              `json:"region_id,omitempty"`
	EntityID     *string              `json:"entity_id,omitempty"`
	ProjectID    *string              `json:"project_id,omitempty"`
	Stages       []models.Stage       `json:"stages,omitempty"`
}

// Update applies changes to a draft template. Published templates are
// immutable except through Publish (which snapshots a new version).
func (s *Template) Update(ctx context.Context, id string, req UpdateTemplateRequest, actor *models.Actor) (*models.WorkflowTemplate, error) {
	template, err := s.persistence.TemplateRepository().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	if template.Status == models.TemplateStatusPublished && req.Stages != nil {
		return nil, ErrCannotModifyPublished
	}

	if req.Name != nil {
		template.Name = *req.Name
	}

	if req.ContractType != nil {
		template.ContractType = *req.ContractType
	}

	if req.RegionID != nil {
		template.RegionID = req.RegionID
	}

	if req.EntityID != nil {
		template.EntityID = req.EntityID
	}

	if req.ProjectID != nil {
		template.ProjectID = req.ProjectID
	}

	if req.Stages != nil {
		template.Stages = req.Stages
	}

	template.UpdatedAt = time.Now().UTC()

	if err := s.persistence.TemplateRepository().Save(ctx, template); err != nil {
		return nil, fmt.Errorf("failed to save template: %w", err)
	}

	s.audit.Record(ctx, "workflow_template.update", "workflow_template", template.ID, actor, nil)

	return template, nil
}

// Publish validates the template's stage graph and, when clean, bumps the
// version, marks the template published and writes the immutable snapshot
// instances will pin. Republishing an already-published template
// re-validates and produces the next version.
func (s *Template) Publish(ctx context.Context, id string, actor *models.Actor) (*models.WorkflowTemplate, error) {
	template, err := s.persistence.TemplateRepository().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	if violations := workflow.ValidateTemplate(template.Stages); len(violations) > 0 {
		return nil, &TemplateValidationError{Violations: violations}
	}

	now := time.Now().UTC()
	template.Version++
	template.Status = models.TemplateStatusPublished
	template.PublishedAt = &now
	template.UpdatedAt = now

	snapshot := &models.TemplateVersion{
		TemplateID:  template.ID,
		Version:     template.Version,
		Stages:      append([]models.Stage(nil), template.Stages...),
		PublishedAt: now,
	}

	if err := s.persistence.TemplateRepository().SaveVersion(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to save template version: %w", err)
	}

	if err := s.persistence.TemplateRepository().Save(ctx, template); err != nil {
		return nil, fmt.Errorf("failed to save template: %w", err)
	}

	s.audit.Record(ctx, "workflow_template_published", "workflow_template", template.ID, actor, map[string]any{
		"version": template.Version,
	})

	if s.eventBus != nil {
		event := events.TemplatePublished{
			BaseEvent:  events.NewBaseEvent(events.TemplatePublishedEvent, ""),
			TemplateID: template.ID,
			Version:    template.Version,
		}
		// Publish failures are non-fatal: the template is already published.
		if err := s.eventBus.Publish(ctx, template.ID, event); err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish template event",
				"template_id", template.ID,
				"version", template.Version,
				"error", err)
		}
	}

	return template, nil
}

// Delete removes a template and its snapshots.
func (s *Template) Delete(ctx context.Context, id string, actor *models.Actor) error {
	if err := s.persistence.TemplateRepository().Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	s.audit.Record(ctx, "workflow_template.delete", "workflow_template", id, actor, nil)

	return nil
}
