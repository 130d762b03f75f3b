package web

import (
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/ccrs/workflow-engine/pkg/models"
)

// Identity headers set by the authenticating gateway in front of the API.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"
	HeaderUserRoles = "X-User-Roles"
)

// actorFromRequest builds the acting principal from the gateway identity
// headers. Returns nil when no identity is present.
func actorFromRequest(c fiber.Ctx) *models.Actor {
	id := c.Get(HeaderUserID)
	if id == "" {
		return nil
	}

	actor := &models.Actor{
		ID:    id,
		Email: c.Get(HeaderUserEmail),
	}

	if roles := c.Get(HeaderUserRoles); roles != "" {
		for _, role := range strings.Split(roles, ",") {
			role = strings.TrimSpace(role)
			if role != "" {
				actor.Roles = append(actor.Roles, role)
			}
		}
	}

	return actor
}
