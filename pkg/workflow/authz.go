package workflow

import "github.com/ccrs/workflow-engine/pkg/models"

// CanAct decides whether an actor may act on a stage. Access is granted when
// the actor appears in the stage's owners or approvers (directly as a user,
// or through any assigned role), or, for signing stages only, when a
// signing-authority row matches the actor by id, email or role. Anything
// else is denied; there is no implicit grant.
//
// Owners and approvers carry equal weight here: membership in either set is
// sufficient for every action type.
func CanAct(stage *models.Stage, actor *models.Actor, signingAuthority []*models.SigningAuthority) bool {
	if stage == nil || actor == nil {
		return false
	}

	if principalsMatch(stage.Owners, actor) || principalsMatch(stage.Approvers, actor) {
		return true
	}

	if stage.Type == models.StageTypeSigning {
		for _, row := range signingAuthority {
			if row.Matches(actor) {
				return true
			}
		}
	}

	return false
}

func principalsMatch(refs []models.PrincipalRef, actor *models.Actor) bool {
	for _, ref := range refs {
		switch ref.Kind {
		case models.PrincipalKindUser:
			if ref.ID == actor.ID {
				return true
			}
		case models.PrincipalKindRole:
			if actor.HasRole(ref.ID) {
				return true
			}
		}
	}

	return false
}

// FilterSigningAuthority keeps the rows that apply to a contract: the row's
// entity must match, and a project-scoped row only applies to that project.
func FilterSigningAuthority(rows []*models.SigningAuthority, contract *models.ContractRef) []*models.SigningAuthority {
	filtered := make([]*models.SigningAuthority, 0, len(rows))

	for _, row := range rows {
		if row.EntityID != contract.EntityID {
			continue
		}

		if row.ProjectID != nil {
			if contract.ProjectID == nil || *row.ProjectID != *contract.ProjectID {
				continue
			}
		}

		filtered = append(filtered, row)
	}

	return filtered
}
