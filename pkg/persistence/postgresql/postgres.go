// Package postgresql provides the PostgreSQL persistence implementation for
// templates, instances, escalations, reminders and notifications.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// PostgreSQL driver.
	_ "github.com/lib/pq"

	"github.com/ccrs/workflow-engine/pkg/persistence"
	"github.com/ccrs/workflow-engine/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	templates        *TemplateRepository
	instances        *InstanceRepository
	actions          *ActionRepository
	escalations      *EscalationRepository
	reminders        *ReminderRepository
	notifications    *NotificationRepository
	signingAuthority *SigningAuthorityRepository
	contracts        *ContractRepository
	audit            *AuditRepository
}

// NewPersistence creates a new PostgreSQL persistence layer and runs
// migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:               database,
		logger:           logger,
		templates:        NewTemplateRepository(database, logger),
		instances:        NewInstanceRepository(database, logger),
		actions:          NewActionRepository(database, logger),
		escalations:      NewEscalationRepository(database, logger),
		reminders:        NewReminderRepository(database, logger),
		notifications:    NewNotificationRepository(database, logger),
		signingAuthority: NewSigningAuthorityRepository(database, logger),
		contracts:        NewContractRepository(database, logger),
		audit:            NewAuditRepository(database, logger),
	}, nil
}

// TemplateRepository returns the template repository.
func (p *Persistence) TemplateRepository() persistence.TemplateRepository {
	return p.templates
}

// InstanceRepository returns the workflow instance repository.
func (p *Persistence) InstanceRepository() persistence.InstanceRepository {
	return p.instances
}

// ActionRepository returns the stage action log repository.
func (p *Persistence) ActionRepository() persistence.ActionRepository {
	return p.actions
}

// EscalationRepository returns the escalation rule and event repository.
func (p *Persistence) EscalationRepository() persistence.EscalationRepository {
	return p.escalations
}

// ReminderRepository returns the reminder repository.
func (p *Persistence) ReminderRepository() persistence.ReminderRepository {
	return p.reminders
}

// NotificationRepository returns the notification repository.
func (p *Persistence) NotificationRepository() persistence.NotificationRepository {
	return p.notifications
}

// SigningAuthorityRepository returns the signing authority repository.
func (p *Persistence) SigningAuthorityRepository() persistence.SigningAuthorityRepository {
	return p.signingAuthority
}

// ContractRepository returns the contract reference repository.
func (p *Persistence) ContractRepository() persistence.ContractRepository {
	return p.contracts
}

// AuditRepository returns the audit log repository.
func (p *Persistence) AuditRepository() persistence.AuditRepository {
	return p.audit
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
