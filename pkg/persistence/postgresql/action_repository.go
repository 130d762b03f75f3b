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
)

// ActionRepository handles the append-only stage action log.
type ActionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewActionRepository creates a new action repository.
func NewActionRepository(db *sql.DB, logger *slog.Logger) *ActionRepository {
	return &ActionRepository{db: db, logger: logger}
}

// Append writes one action row. Rows are never updated or deleted.
func (r *ActionRepository) Append(ctx context.Context, action *models.StageAction) error {
	if action.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate action ID: %w", err)
		}

		action.ID = id.String()
	}

	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}

	var artifactsJSON []byte

	if action.Artifacts != nil {
		data, err := json.Marshal(action.Artifacts)
		if err != nil {
			return fmt.Errorf("failed to marshal artifacts: %w", err)
		}

		artifactsJSON = data
	}

	query := `
		INSERT INTO stage_actions (id, instance_id, stage_name, action, actor_id, actor_email, comment, artifacts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		action.ID,
		action.InstanceID,
		action.StageName,
		action.Action,
		action.ActorID,
		action.ActorEmail,
		action.Comment,
		artifactsJSON,
		action.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append stage action: %w", err)
	}

	return nil
}

// ListByInstance returns an instance's actions in creation order.
func (r *ActionRepository) ListByInstance(ctx context.Context, instanceID string) ([]*models.StageAction, error) {
	query := `
		SELECT id, instance_id, stage_name, action, actor_id, actor_email, comment, artifacts, created_at
		FROM stage_actions
		WHERE instance_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stage actions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	actions := make([]*models.StageAction, 0)

	for rows.Next() {
		action, err := r.scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stage action: %w", err)
		}

		actions = append(actions, action)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stage actions: %w", err)
	}

	return actions, nil
}

// LatestByInstance returns the newest action for an instance, or nil when
// no action has been recorded yet.
func (r *ActionRepository) LatestByInstance(ctx context.Context, instanceID string) (*models.StageAction, error) {
	query := `
		SELECT id, instance_id, stage_name, action, actor_id, actor_email, comment, artifacts, created_at
		FROM stage_actions
		WHERE instance_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	action, err := r.scanAction(r.db.QueryRowContext(ctx, query, instanceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan stage action: %w", err)
	}

	return action, nil
}

func (r *ActionRepository) scanAction(scanner interface {
	Scan(dest ...any) error
}) (*models.StageAction, error) {
	var (
		action              models.StageAction
		actorEmail, comment sql.NullString
		artifactsJSON       []byte
	)

	err := scanner.Scan(
		&action.ID,
		&action.InstanceID,
		&action.StageName,
		&action.Action,
		&action.ActorID,
		&actorEmail,
		&comment,
		&artifactsJSON,
		&action.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	action.ActorEmail = actorEmail.String
	action.Comment = comment.String

	if artifactsJSON != nil {
		err := json.Unmarshal(artifactsJSON, &action.Artifacts)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal artifacts: %w", err)
		}
	}

	return &action, nil
}
