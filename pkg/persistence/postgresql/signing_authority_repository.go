package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/ccrs/workflow-engine/pkg/models"
)

// SigningAuthorityRepository reads the externally managed signing-authority
// table.
type SigningAuthorityRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSigningAuthorityRepository creates a new signing authority repository.
func NewSigningAuthorityRepository(db *sql.DB, logger *slog.Logger) *SigningAuthorityRepository {
	return &SigningAuthorityRepository{db: db, logger: logger}
}

// ListForEntity returns all signing-authority rows for an entity. Project
// scoping is applied by the authorization gate.
func (r *SigningAuthorityRepository) ListForEntity(ctx context.Context, entityID string) ([]*models.SigningAuthority, error) {
	query := `
		SELECT id, entity_id, project_id, user_id, user_email, role_or_name, contract_type_pattern
		FROM signing_authority
		WHERE entity_id = $1
	`

	rows, err := r.db.QueryContext(ctx, query, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query signing authority: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	authorities := make([]*models.SigningAuthority, 0)

	for rows.Next() {
		var (
			authority                       models.SigningAuthority
			userID, userEmail, role, pattern sql.NullString
		)

		err := rows.Scan(
			&authority.ID,
			&authority.EntityID,
			&authority.ProjectID,
			&userID,
			&userEmail,
			&role,
			&pattern,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signing authority: %w", err)
		}

		authority.UserID = userID.String
		authority.UserEmail = userEmail.String
		authority.RoleOrName = role.String
		authority.ContractTypePattern = pattern.String

		authorities = append(authorities, &authority)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signing authority: %w", err)
	}

	return authorities, nil
}
