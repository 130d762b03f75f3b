// Package audit provides the fire-and-forget audit trail used by the engine
// for template publishes, instance starts and stage actions.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/ccrs/workflow-engine/pkg/models"
	"github.com/ccrs/workflow-engine/pkg/persistence"
)

// Logger records audit entries. Implementations must never fail the calling
// operation: a lost audit row is logged, not propagated.
type Logger interface {
	Record(ctx context.Context, action, resourceType, resourceID string, actor *models.Actor, details map[string]any)
}

// StoreLogger appends audit entries to the persistence layer.
type StoreLogger struct {
	repo   persistence.AuditRepository
	logger *slog.Logger
}

func NewStoreLogger(repo persistence.AuditRepository, logger *slog.Logger) *StoreLogger {
	return &StoreLogger{
		repo:   repo,
		logger: logger.With("module", "audit"),
	}
}

func (l *StoreLogger) Record(ctx context.Context, action, resourceType, resourceID string, actor *models.Actor, details map[string]any) {
	entry := &persistence.AuditEntry{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
		CreatedAt:    time.Now().UTC(),
	}
	if actor != nil {
		entry.ActorID = actor.ID
	}

	if err := l.repo.Append(ctx, entry); err != nil {
		l.logger.ErrorContext(ctx, "Failed to append audit entry",
			"action", action,
			"resource_type", resourceType,
			"resource_id", resourceID,
			"error", err)
	}
}

// Nop discards all audit entries. Used in tests and tools that do not carry
// an audit store.
type Nop struct{}

func (Nop) Record(context.Context, string, string, string, *models.Actor, map[string]any) {}
