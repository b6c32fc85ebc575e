package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized signals a request without an authenticated principal.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrDocumentNotFound signals a missing document or one owned by someone else.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrValidation signals a malformed request.
	ErrValidation = errors.New("validation failed")
	// ErrRetrieval signals a vector index or query embedding failure.
	ErrRetrieval = errors.New("retrieval failed")
	// ErrGeneration signals a language model failure at any stage, including timeout.
	ErrGeneration = errors.New("generation failed")
	// ErrPersistence signals a conversation store failure.
	ErrPersistence = errors.New("persistence failed")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrUnsupportedOption signals an unknown text option.
	ErrUnsupportedOption = errors.New("unsupported text option")
)

// StageError records which model stage failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() []error { return []error{ErrGeneration, e.Err} }

// NewStageError wraps err as a generation failure of the named stage.
func NewStageError(stage string, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// ValidationError carries the offending field for a malformed request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidation.Error(), e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a validation error for field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
