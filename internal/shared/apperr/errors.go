// Package apperr defines the error kinds surfaced by the queue, registry and
// feedback services. Each kind matches its package-level sentinel via errors.Is,
// so callers can classify wrapped errors without type assertions.
package apperr

import "errors"

// ErrValidation matches any *ValidationError.
var ErrValidation = &ValidationError{}

// ValidationError reports malformed input (filter, metadata, id shape).
type ValidationError struct {
	Field   string
	Message string
}

// Validation builds a ValidationError for field.
func Validation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		if e.Field != "" {
			return e.Field + ": " + e.Message
		}
		return e.Message
	}
	if e.Field != "" {
		return "validation failed for field: " + e.Field
	}
	return "validation error"
}

// Is reports whether target is a *ValidationError.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// ErrNotFound matches any *NotFoundError.
var ErrNotFound = &NotFoundError{}

// NotFoundError reports an unknown document, model, feedback or example id.
type NotFoundError struct {
	Resource string
	ID       string
}

// NotFound builds a NotFoundError for resource/id.
func NotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	switch {
	case e.Resource != "" && e.ID != "":
		return e.Resource + " " + e.ID + " not found"
	case e.Resource != "":
		return e.Resource + " not found"
	default:
		return "resource not found"
	}
}

// Is reports whether target is a *NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

// ErrConflict matches any *ConflictError.
var ErrConflict = &ConflictError{}

// ConflictError reports a concurrent mutation of the same record.
type ConflictError struct {
	Message string
}

// Conflict builds a ConflictError.
func Conflict(message string) *ConflictError {
	return &ConflictError{Message: message}
}

func (e *ConflictError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "conflict"
}

// Is reports whether target is a *ConflictError.
func (e *ConflictError) Is(target error) bool {
	_, ok := target.(*ConflictError)
	return ok
}

// ErrExternalProcessing matches any *ExternalProcessingError.
var ErrExternalProcessing = &ExternalProcessingError{}

// ExternalProcessingError wraps a failure reported by the extraction worker.
// It is stored on the queue item, never returned through the queue API.
type ExternalProcessingError struct {
	DocumentID string
	Message    string
}

// ExternalProcessing builds an ExternalProcessingError.
func ExternalProcessing(documentID, message string) *ExternalProcessingError {
	return &ExternalProcessingError{DocumentID: documentID, Message: message}
}

func (e *ExternalProcessingError) Error() string {
	if e.Message == "" {
		return "external processing failed"
	}
	return e.Message
}

// Is reports whether target is an *ExternalProcessingError.
func (e *ExternalProcessingError) Is(target error) bool {
	_, ok := target.(*ExternalProcessingError)
	return ok
}

// ErrPermission matches any *PermissionError.
var ErrPermission = &PermissionError{}

// PermissionError is produced by the authorization collaborator.
type PermissionError struct {
	ActorID string
	Message string
}

// Permission builds a PermissionError.
func Permission(actorID, message string) *PermissionError {
	return &PermissionError{ActorID: actorID, Message: message}
}

func (e *PermissionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "permission denied"
}

// Is reports whether target is a *PermissionError.
func (e *PermissionError) Is(target error) bool {
	_, ok := target.(*PermissionError)
	return ok
}

// Code returns the stable machine-readable code for err, defaulting to
// "internal_error" for unclassified errors.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrExternalProcessing):
		return "external_processing_error"
	case errors.Is(err, ErrPermission):
		return "permission_denied"
	default:
		return "internal_error"
	}
}
