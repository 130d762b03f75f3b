package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ccrs/workflow-engine/pkg/models"
	"github.com/ccrs/workflow-engine/pkg/persistence"
)

// ContractRepository reads contract scope fields and mirrors the workflow
// state onto the contract row.
type ContractRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewContractRepository creates a new contract repository.
func NewContractRepository(db *sql.DB, logger *slog.Logger) *ContractRepository {
	return &ContractRepository{db: db, logger: logger}
}

// GetRef returns the engine's slice of the contract record.
func (r *ContractRepository) GetRef(ctx context.Context, contractID string) (*models.ContractRef, error) {
	query := `
		SELECT id, title, entity_id, project_id, workflow_state
		FROM contracts
		WHERE id = $1
	`

	var (
		ref                            models.ContractRef
		title, entityID, workflowState sql.NullString
	)

	err := r.db.QueryRowContext(ctx, query, contractID).Scan(
		&ref.ID,
		&title,
		&entityID,
		&ref.ProjectID,
		&workflowState,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("GetRef", "contract", contractID, persistence.ErrContractNotFound)
		}

		return nil, fmt.Errorf("failed to scan contract: %w", err)
	}

	ref.Title = title.String
	ref.EntityID = entityID.String
	ref.WorkflowState = workflowState.String

	return &ref, nil
}

// UpdateWorkflowState mirrors the instance's current stage onto the contract.
func (r *ContractRepository) UpdateWorkflowState(ctx context.Context, contractID, state string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE contracts SET workflow_state = $2 WHERE id = $1", contractID, state)
	if err != nil {
		return fmt.Errorf("failed to update contract workflow state: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewStoreError("UpdateWorkflowState", "contract", contractID, persistence.ErrContractNotFound)
	}

	return nil
}
