package service

import (
	"catalog-validation/internal/model"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrJobAlreadyEnqueued = errors.New("validation job already enqueued")
	ErrJobAlreadyRunning  = errors.New("validation job already running")
	ErrJobDoesNotExist    = errors.New("validation job does not exist")
	ErrInvalidTransition  = errors.New("invalid validation status transition")
	ErrInvalidStatus      = errors.New("invalid validation status")
	ErrNotFound           = errors.New("not found")
)

// ValidationError reports invalid input, keyed by field.
type ValidationError struct {
	Errors map[string][]string
}

func NewValidationError(field string, messages ...string) *ValidationError {
	return &ValidationError{Errors: map[string][]string{field: messages}}
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Errors))
	for field := range e.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(e.Errors[field], ", ")))
	}
	return "validation error: " + strings.Join(parts, "; ")
}

// ValidationFailedError rejects a resource whose synchronous validation did
// not succeed.
type ValidationFailedError struct {
	ResourceID string
	Status     model.ValidationStatus
	Report     *model.Report
	Payload    *model.ErrorPayload
}

func (e *ValidationFailedError) Error() string {
	if e.Payload != nil && len(e.Payload.Message) > 0 {
		return fmt.Sprintf("validation of resource %s ended with %s: %s", e.ResourceID, e.Status, strings.Join(e.Payload.Message, "; "))
	}
	return fmt.Sprintf("validation of resource %s ended with %s", e.ResourceID, e.Status)
}
