// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ccrs/workflow-engine/pkg/persistence"
	"github.com/ccrs/workflow-engine/pkg/persistence/memory"
	"github.com/ccrs/workflow-engine/pkg/persistence/postgresql"
)

// NewPersistence creates the persistence layer from a database URL. URLs with
// a postgres scheme get the PostgreSQL backend; anything else falls back to
// the in-memory store, which is only suitable for local development.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parsePersistenceProvider(databaseURL) {
	case "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create PostgreSQL persistence: %w", err))
		}

		return p
	default:
		logger.WarnContext(ctx, "No database URL configured, using in-memory persistence")

		return memory.NewPersistence()
	}
}

func parsePersistenceProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "memory"
	}

	switch scheme {
	case "postgres", "postgresql":
		return "postgresql"
	default:
		return "memory"
	}
}
