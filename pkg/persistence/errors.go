// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrTemplateNotFound indicates a workflow template was not found by the given identifier.
	ErrTemplateNotFound = errors.New("workflow template not found")

	// ErrTemplateVersionNotFound indicates no published snapshot exists for the given (template, version).
	ErrTemplateVersionNotFound = errors.New("template version not found")

	// ErrInstanceNotFound indicates a workflow instance was not found by the given identifier.
	ErrInstanceNotFound = errors.New("workflow instance not found")

	// ErrRuleNotFound indicates an escalation rule was not found by the given identifier.
	ErrRuleNotFound = errors.New("escalation rule not found")

	// ErrEventNotFound indicates an escalation event was not found, or is already resolved.
	ErrEventNotFound = errors.New("escalation event not found")

	// ErrReminderNotFound indicates a reminder was not found by the given identifier.
	ErrReminderNotFound = errors.New("reminder not found")

	// ErrNotificationNotFound indicates a notification was not found by the given identifier.
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrContractNotFound indicates a contract record was not found by the given identifier.
	ErrContractNotFound = errors.New("contract not found")

	// ErrDuplicateActiveInstance indicates the contract already has an active workflow instance.
	ErrDuplicateActiveInstance = errors.New("contract already has an active workflow instance")

	// ErrStaleInstanceStage indicates a conditional instance update found the stored
	// row no longer active on the expected stage (a concurrent action won).
	ErrStaleInstanceStage = errors.New("instance is no longer on the expected stage")

	// ErrDuplicateEscalationEvent indicates an unresolved event already exists for (instance, rule).
	ErrDuplicateEscalationEvent = errors.New("unresolved escalation event already exists")
)

// StoreError wraps store-level errors with operation context.
type StoreError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save", "Append")
	Resource   string // Resource kind (e.g., "template", "instance")
	ResourceID string // Identifier if applicable
	Err        error  // Underlying error
}

func (e *StoreError) Error() string {
	if e.ResourceID != "" {
		return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Resource, e.ResourceID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for %s: %v", e.Op, e.Resource, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a new store error with context.
func NewStoreError(op, resource, resourceID string, err error) *StoreError {
	return &StoreError{
		Op:         op,
		Resource:   resource,
		ResourceID: resourceID,
		Err:        err,
	}
}

// IsTemplateNotFound checks if an error indicates a template was not found.
func IsTemplateNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound)
}

// IsTemplateVersionNotFound checks if an error indicates a published snapshot was not found.
func IsTemplateVersionNotFound(err error) bool {
	return errors.Is(err, ErrTemplateVersionNotFound)
}

// IsInstanceNotFound checks if an error indicates an instance was not found.
func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}

// IsNotFound checks if an error indicates any resource was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound) ||
		errors.Is(err, ErrTemplateVersionNotFound) ||
		errors.Is(err, ErrInstanceNotFound) ||
		errors.Is(err, ErrRuleNotFound) ||
		errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrReminderNotFound) ||
		errors.Is(err, ErrNotificationNotFound) ||
		errors.Is(err, ErrContractNotFound)
}

// IsStaleInstanceStage checks if an error indicates a conditional instance update lost to a concurrent writer.
func IsStaleInstanceStage(err error) bool {
	return errors.Is(err, ErrStaleInstanceStage)
}

// IsDuplicateActiveInstance checks if an error indicates a second active instance for a contract.
func IsDuplicateActiveInstance(err error) bool {
	return errors.Is(err, ErrDuplicateActiveInstance)
}

// IsDuplicateEscalationEvent checks if an error indicates the unresolved-event uniqueness guard fired.
func IsDuplicateEscalationEvent(err error) bool {
	return errors.Is(err, ErrDuplicateEscalationEvent)
}
