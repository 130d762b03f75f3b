package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ccrs/workflow-engine/pkg/models"
	"github.com/ccrs/workflow-engine/pkg/persistence"
)

// TemplateRepository handles workflow template and snapshot database
// operations.
type TemplateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(db *sql.DB, logger *slog.Logger) *TemplateRepository {
	return &TemplateRepository{db: db, logger: logger}
}

// GetByID returns a template by its ID.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	query := `
		SELECT
			id
		  , name
		  , contract_type
		  , region_id
		  , entity_id
		  , project_id
		  , stages
		  , status
		  , version
		  , created_by
		  , created_at
		  , updated_at
		  , published_at
		FROM workflow_templates
		WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, id)

	template, err := r.scanTemplate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("GetByID", "template", id, persistence.ErrTemplateNotFound)
		}

		return nil, fmt.Errorf("failed to scan template: %w", err)
	}

	return template, nil
}

// List returns templates matching the given filters, newest first, plus the
// unpaged total count.
func (r *TemplateRepository) List(ctx context.Context, opts persistence.TemplateListOptions) (*persistence.TemplateListResult, error) {
	where := "WHERE 1=1"
	args := make([]any, 0, 5)

	if opts.Status != nil {
		args = append(args, string(*opts.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	if opts.ContractType != nil {
		args = append(args, string(*opts.ContractType))
		where += fmt.Sprintf(" AND contract_type = $%d", len(args))
	}

	if opts.RegionID != "" {
		args = append(args, opts.RegionID)
		where += fmt.Sprintf(" AND region_id = $%d", len(args))
	}

	if opts.EntityID != "" {
		args = append(args, opts.EntityID)
		where += fmt.Sprintf(" AND entity_id = $%d", len(args))
	}

	if opts.ProjectID != "" {
		args = append(args, opts.ProjectID)
		where += fmt.Sprintf(" AND project_id = $%d", len(args))
	}

	var total int64

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflow_templates "+where, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count templates: %w", err)
	}

	query := `
		SELECT
			id
		  , name
		  , contract_type
		  , region_id
		  , entity_id
		  , project_id
		  , stages
		  , status
		  , version
		  , created_by
		  , created_at
		  , updated_at
		  , published_at
		FROM workflow_templates
	` + where + " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	templates := make([]*models.WorkflowTemplate, 0)

	for rows.Next() {
		template, err := r.scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}

		templates = append(templates, template)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	return &persistence.TemplateListResult{Templates: templates, TotalCount: total}, nil
}

// Save upserts a template.
func (r *TemplateRepository) Save(ctx context.Context, template *models.WorkflowTemplate) error {
	now := time.Now().UTC()

	if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}

	template.UpdatedAt = now

	if template.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate template ID: %w", err)
		}

		template.ID = id.String()
	}

	stagesJSON, err := json.Marshal(template.Stages)
	if err != nil {
		return fmt.Errorf("failed to marshal stages: %w", err)
	}

	query := `
		INSERT INTO workflow_templates (id, name, contract_type, region_id, entity_id, project_id,
			stages, status, version, created_by, created_at, updated_at, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			contract_type = EXCLUDED.contract_type,
			region_id = EXCLUDED.region_id,
			entity_id = EXCLUDED.entity_id,
			project_id = EXCLUDED.project_id,
			stages = EXCLUDED.stages,
			status = EXCLUDED.status,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at,
			published_at = EXCLUDED.published_at
	`

	_, err = r.db.ExecContext(ctx, query,
		template.ID,
		template.Name,
		template.ContractType,
		template.RegionID,
		template.EntityID,
		template.ProjectID,
		stagesJSON,
		template.Status,
		template.Version,
		template.CreatedBy,
		template.CreatedAt,
		template.UpdatedAt,
		template.PublishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}

	return nil
}

// Delete removes a template and its snapshots.
func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM workflow_templates WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewStoreError("Delete", "template", id, persistence.ErrTemplateNotFound)
	}

	return nil
}

// SaveVersion writes an immutable published snapshot.
func (r *TemplateRepository) SaveVersion(ctx context.Context, version *models.TemplateVersion) error {
	stagesJSON, err := json.Marshal(version.Stages)
	if err != nil {
		return fmt.Errorf("failed to marshal stages: %w", err)
	}

	query := `
		INSERT INTO workflow_template_versions (template_id, version, stages, published_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (template_id, version) DO NOTHING
	`

	_, err = r.db.ExecContext(ctx, query,
		version.TemplateID,
		version.Version,
		stagesJSON,
		version.PublishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save template version: %w", err)
	}

	return nil
}

// GetVersion returns the published snapshot for (template, version).
func (r *TemplateRepository) GetVersion(ctx context.Context, templateID string, version int) (*models.TemplateVersion, error) {
	query := `
		SELECT template_id, version, stages, published_at
		FROM workflow_template_versions
		WHERE template_id = $1 AND version = $2
	`

	var (
		snapshot   models.TemplateVersion
		stagesJSON []byte
	)

	err := r.db.QueryRowContext(ctx, query, templateID, version).Scan(
		&snapshot.TemplateID,
		&snapshot.Version,
		&stagesJSON,
		&snapshot.PublishedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("GetVersion", "template_version", templateID, persistence.ErrTemplateVersionNotFound)
		}

		return nil, fmt.Errorf("failed to scan template version: %w", err)
	}

	err = json.Unmarshal(stagesJSON, &snapshot.Stages)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal stages: %w", err)
	}

	return &snapshot, nil
}

func (r *TemplateRepository) scanTemplate(scanner interface {
	Scan(dest ...any) error
}) (*models.WorkflowTemplate, error) {
	var (
		template   models.WorkflowTemplate
		stagesJSON []byte
		createdBy  sql.NullString
	)

	err := scanner.Scan(
		&template.ID,
		&template.Name,
		&template.ContractType,
		&template.RegionID,
		&template.EntityID,
		&template.ProjectID,
		&stagesJSON,
		&template.Status,
		&template.Version,
		&createdBy,
		&template.CreatedAt,
		&template.UpdatedAt,
		&template.PublishedAt,
	)
	if err != nil {
		return nil, err
	}

	template.CreatedBy = createdBy.String

	if stagesJSON != nil {
		err := json.Unmarshal(stagesJSON, &template.Stages)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal stages: %w", err)
		}
	}

	return &template, nil
}
