package models

// Actor is the authenticated caller as presented by the authentication layer.
type Actor struct {
	ID    string   `json:"id"`
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// HasRole reports whether the actor carries the given role.
func (a *Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}

	return false
}

// SigningAuthority is one row of the externally managed signing-authority
// table: who may sign for an entity, optionally narrowed to a project.
type SigningAuthority struct {
	ID                  string  `json:"id"`
	EntityID            string  `json:"entity_id"`
	ProjectID           *string `json:"project_id,omitempty"`
	UserID              string  `json:"user_id,omitempty"`
	UserEmail           string  `json:"user_email,omitempty"`
	RoleOrName          string  `json:"role_or_name,omitempty"`
	ContractTypePattern string  `json:"contract_type_pattern,omitempty"`
}

// Matches reports whether this row grants signing authority to the actor,
// by user id, by email, or by role name.
func (s *SigningAuthority) Matches(actor *Actor) bool {
	if s.UserID != "" && s.UserID == actor.ID {
		return true
	}

	if s.UserEmail != "" && s.UserEmail == actor.Email {
		return true
	}

	if s.RoleOrName != "" && actor.HasRole(s.RoleOrName) {
		return true
	}

	return false
}

// ContractRef is the slice of the contract record the engine touches: the
// denormalized workflow-state mirror plus the scoping fields the
// authorization gate filters signing-authority rows by. The contract record
// itself is owned by the resource CRUD layer.
type ContractRef struct {
	ID            string  `json:"id"`
	Title         string  `json:"title,omitempty"`
	EntityID      string  `json:"entity_id,omitempty"`
	ProjectID     *string `json:"project_id,omitempty"`
	WorkflowState string  `json:"workflow_state,omitempty"`
}
