package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ccrs/workflow-engine/pkg/models"
	"github.com/ccrs/workflow-engine/pkg/persistence"
)

// InstanceRepository handles workflow instance database operations.
type InstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewInstanceRepository creates a new instance repository.
func NewInstanceRepository(db *sql.DB, logger *slog.Logger) *InstanceRepository {
	return &InstanceRepository{db: db, logger: logger}
}

const instanceColumns = `
	id
  , contract_id
  , template_id
  , template_version
  , current_stage
  , state
  , started_at
  , completed_at
`

// GetByID returns an instance by its ID.
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	query := "SELECT " + instanceColumns + " FROM workflow_instances WHERE id = $1"

	instance, err := r.scanInstance(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("GetByID", "instance", id, persistence.ErrInstanceNotFound)
		}

		return nil, fmt.Errorf("failed to scan instance: %w", err)
	}

	return instance, nil
}

// GetActiveByContract returns the contract's single active instance.
func (r *InstanceRepository) GetActiveByContract(ctx context.Context, contractID string) (*models.WorkflowInstance, error) {
	query := "SELECT " + instanceColumns + " FROM workflow_instances WHERE contract_id = $1 AND state = 'active'"

	instance, err := r.scanInstance(r.db.QueryRowContext(ctx, query, contractID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("GetActiveByContract", "instance", contractID, persistence.ErrInstanceNotFound)
		}

		return nil, fmt.Errorf("failed to scan instance: %w", err)
	}

	return instance, nil
}

// ListActive returns all active instances, oldest first.
func (r *InstanceRepository) ListActive(ctx context.Context) ([]*models.WorkflowInstance, error) {
	query := "SELECT " + instanceColumns + " FROM workflow_instances WHERE state = 'active' ORDER BY started_at"

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active instances: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	instances := make([]*models.WorkflowInstance, 0)

	for rows.Next() {
		instance, err := r.scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}

		instances = append(instances, instance)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}

	return instances, nil
}

// Save upserts an instance. The partial unique index on active instances
// enforces the one-active-per-contract invariant at the database level.
func (r *InstanceRepository) Save(ctx context.Context, instance *models.WorkflowInstance) error {
	if instance.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate instance ID: %w", err)
		}

		instance.ID = id.String()
	}

	query := `
		INSERT INTO workflow_instances (id, contract_id, template_id, template_version,
			current_stage, state, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			current_stage = EXCLUDED.current_stage,
			state = EXCLUDED.state,
			completed_at = EXCLUDED.completed_at
	`

	_, err := r.db.ExecContext(ctx, query,
		instance.ID,
		instance.ContractID,
		instance.TemplateID,
		instance.TemplateVersion,
		instance.CurrentStage,
		instance.State,
		instance.StartedAt,
		instance.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "uq_instances_active_contract") {
			return persistence.NewStoreError("Save", "instance", instance.ContractID, persistence.ErrDuplicateActiveInstance)
		}

		return fmt.Errorf("failed to save instance: %w", err)
	}

	return nil
}

// AdvanceFromStage conditionally moves an instance off expectedStage. The
// WHERE clause is the concurrency guard: when another action already advanced
// or completed the instance, zero rows match and the caller gets
// ErrStaleInstanceStage instead of a silent double-write.
func (r *InstanceRepository) AdvanceFromStage(ctx context.Context, instance *models.WorkflowInstance, expectedStage string) error {
	query := `
		UPDATE workflow_instances SET
			current_stage = $1,
			state = $2,
			completed_at = $3
		WHERE id = $4 AND state = 'active' AND current_stage = $5
	`

	result, err := r.db.ExecContext(ctx, query,
		instance.CurrentStage,
		instance.State,
		instance.CompletedAt,
		instance.ID,
		expectedStage,
	)
	if err != nil {
		return fmt.Errorf("failed to advance instance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewStoreError("AdvanceFromStage", "instance", instance.ID, persistence.ErrStaleInstanceStage)
	}

	return nil
}

func (r *InstanceRepository) scanInstance(scanner interface {
	Scan(dest ...any) error
}) (*models.WorkflowInstance, error) {
	var instance models.WorkflowInstance

	err := scanner.Scan(
		&instance.ID,
		&instance.ContractID,
		&instance.TemplateID,
		&instance.TemplateVersion,
		&instance.CurrentStage,
		&instance.State,
		&instance.StartedAt,
		&instance.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	return &instance, nil
}
