package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrParse is returned when document text extraction fails. Unrecoverable:
	// the document is marked failed and never retried.
	ErrParse = errors.New("parse error")
	// ErrEmbeddingUnavailable is returned when the embedding provider cannot be
	// reached or responds with a server error. Transient.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")
	// ErrEmbeddingRejected is returned when the embedding provider rejects the
	// input itself (malformed request). Not transient.
	ErrEmbeddingRejected = errors.New("embedding input rejected")
	// ErrProviderUnavailable is returned when the generation provider cannot
	// be reached. The router absorbs it as a degradation input.
	ErrProviderUnavailable = errors.New("generation provider unavailable")
	// ErrIndexUnavailable is returned when the vector index cannot be reached.
	// Treated as a retrieval fault, not as "no relevant content".
	ErrIndexUnavailable = errors.New("vector index unavailable")
	// ErrConflict is returned when a state transition races with another
	// writer for the same (document_id, version).
	ErrConflict = errors.New("conflicting state transition")
)

// ValidationError represents a validation error with a field name.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// WrapError wraps an error with additional context.
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}
