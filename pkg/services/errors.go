// Package services provides the application services fronting the workflow
// engine: template authoring and publishing, escalation rules and events,
// reminders and notifications.
package services

import (
	"errors"
	"fmt"
	"strings"
)

// Business logic errors. These indicate client errors (4xx responses).
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest       = errors.New("invalid request")
	ErrTemplateNameRequired = errors.New("template name is required")
	ErrStagesRequired       = errors.New("template must have at least one stage")
	ErrTemplateNil          = errors.New("template cannot be nil")
	ErrInvalidLeadDays      = errors.New("lead days must be positive")

	// Business logic conflicts (409 Conflict).
	ErrCannotModifyPublished = errors.New("cannot modify published template; create a new draft or republish")
)

// TemplateValidationError carries the full list of structural violations
// found by the template validator, so the caller sees every problem in one
// response.
type TemplateValidationError struct {
	Violations []string
}

func (e *TemplateValidationError) Error() string {
	return "template validation failed: " + strings.Join(e.Violations, "; ")
}

// IsTemplateValidation reports whether err is a template validation failure
// and returns the violation list when it is.
func IsTemplateValidation(err error) (*TemplateValidationError, bool) {
	var tve *TemplateValidationError
	if errors.As(err, &tve) {
		return tve, true
	}

	return nil, false
}

// ServiceError wraps service-level errors with operation context.
type ServiceError struct {
	Op      string // Operation name
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	if _, ok := IsTemplateValidation(err); ok {
		return true
	}

	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrTemplateNameRequired) ||
		errors.Is(err, ErrStagesRequired) ||
		errors.Is(err, ErrTemplateNil) ||
		errors.Is(err, ErrInvalidLeadDays)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrCannotModifyPublished)
}
