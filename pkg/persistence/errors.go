// Package persistence provides standardized error types for storage
// operations.
package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrWorkflowNotFound indicates no workflow exists with the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrExecutionNotFound indicates no execution exists with the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrScheduleNotFound indicates no schedule exists with the given identifier.
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrCredentialNotFound indicates no credential exists with the given identifier.
	ErrCredentialNotFound = errors.New("credential not found")
)

// StorageError wraps a storage failure with the operation and entity it
// happened on.
type StorageError struct {
	Op       string // Operation being performed, e.g. "SaveWorkflow"
	Entity   string // Entity kind, e.g. "workflow"
	EntityID string
	Err      error
}

func (e *StorageError) Error() string {
	if e.EntityID != "" {
		return fmt.Sprintf("%s failed for %s %s: %v", e.Op, e.Entity, e.EntityID, e.Err)
	}

	return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Entity, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewStorageError(op, entity, entityID string, err error) *StorageError {
	return &StorageError{Op: op, Entity: entity, EntityID: entityID, Err: err}
}

// IsWorkflowNotFound checks if an error indicates a missing workflow.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsExecutionNotFound checks if an error indicates a missing execution.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsScheduleNotFound checks if an error indicates a missing schedule.
func IsScheduleNotFound(err error) bool {
	return errors.Is(err, ErrScheduleNotFound)
}

// IsCredentialNotFound checks if an error indicates a missing credential.
func IsCredentialNotFound(err error) bool {
	return errors.Is(err, ErrCredentialNotFound)
}

// IsNotFound checks if an error indicates any missing entity.
func IsNotFound(err error) bool {
	return IsWorkflowNotFound(err) ||
		IsExecutionNotFound(err) ||
		IsScheduleNotFound(err) ||
		IsCredentialNotFound(err)
}
