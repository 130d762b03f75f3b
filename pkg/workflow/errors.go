package workflow

import "errors"

// Engine errors. The API layer distinguishes three classes: validation
// failures (the caller sent something inconsistent with current state),
// authorization failures (the actor lacks rights for the stage) and
// not-found failures surfaced from the persistence layer.
var (
	// ErrTemplateNotPublished indicates an instance start against a draft template.
	ErrTemplateNotPublished = errors.New("template is not published")

	// ErrTemplateHasNoStages indicates a published template with an empty stage list.
	ErrTemplateHasNoStages = errors.New("template has no stages")

	// ErrActiveInstanceExists indicates the contract already has an active instance.
	ErrActiveInstanceExists = errors.New("contract already has an active workflow instance")

	// ErrStageMismatch indicates an action submitted against a stage the
	// instance is no longer in. Clients should refresh and retry.
	ErrStageMismatch = errors.New("stage does not match the instance's current stage")

	// ErrUnknownStage indicates the instance's current stage no longer resolves
	// in its pinned template version.
	ErrUnknownStage = errors.New("stage not found in pinned template version")

	// ErrInstanceCompleted indicates an action against a terminal instance.
	ErrInstanceCompleted = errors.New("workflow instance is already completed")

	// ErrInvalidAction indicates an action type the engine does not understand.
	ErrInvalidAction = errors.New("invalid stage action")

	// ErrNotAuthorized indicates the actor may not act on the current stage.
	// This must surface as forbidden, never as a validation failure.
	ErrNotAuthorized = errors.New("actor is not authorized for this stage")
)

// IsValidationError reports whether the error is a state/input problem the
// caller can correct.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrTemplateNotPublished) ||
		errors.Is(err, ErrTemplateHasNoStages) ||
		errors.Is(err, ErrStageMismatch) ||
		errors.Is(err, ErrUnknownStage) ||
		errors.Is(err, ErrInstanceCompleted) ||
		errors.Is(err, ErrInvalidAction)
}

// IsAuthorizationError reports whether the error is an authorization denial.
func IsAuthorizationError(err error) bool {
	return errors.Is(err, ErrNotAuthorized)
}

// IsConflictError reports whether the error is a uniqueness conflict.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrActiveInstanceExists)
}
