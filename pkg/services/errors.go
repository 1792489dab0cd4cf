// Package services holds the application layer between transport handlers and
// persistence. Handlers translate these errors to HTTP problems; the services
// themselves never know about HTTP.
package services

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation wraps any definition or input validation failure.
	ErrValidation = errors.New("validation failed")

	// ErrWorkflowNotEditable is returned when mutating an archived workflow.
	ErrWorkflowNotEditable = errors.New("archived workflows cannot be modified")

	// ErrWorkflowNotExecutable is returned when starting an execution for a
	// workflow that is not active.
	ErrWorkflowNotExecutable = errors.New("workflow is not active")

	// ErrExecutionFinished is returned when stopping an execution that has
	// already reached a terminal status.
	ErrExecutionFinished = errors.New("execution already finished")
)

// ValidationError carries the failing field or node so API responses can point
// at the exact problem.
type ValidationError struct {
	Subject string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("validation failed: %v", e.Err)
	}

	return fmt.Sprintf("validation failed on %s: %v", e.Subject, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError wraps a cause as a validation failure.
func NewValidationError(subject string, err error) error {
	return &ValidationError{Subject: subject, Err: err}
}

// IsValidation reports whether err is any validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
