package interfaces

import (
	"errors"
	"fmt"
)

// ErrCourseNotFound is returned when a course name resolves to no ingested
// course. It is a normal negative result, not a failure.
var ErrCourseNotFound = errors.New("course not found")

// EmbeddingError reports that the embedding service could not produce vectors.
type EmbeddingError struct {
	Model string
	Err   error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding with %s failed: %v", e.Model, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// UnknownToolError is returned when a tool name is not registered.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

// ProviderError is a failure of the language model provider call.
type ProviderError struct {
	Provider   string
	StatusCode int  // HTTP status when known, 0 otherwise
	Retryable  bool // Rate limits, overload, server errors and timeouts
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s request failed (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsRetryable reports whether err wraps a retryable ProviderError.
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable
}

// GenerationError is the single error surfaced to callers when an answer
// could not be generated.
type GenerationError struct {
	Round    int // Tool round in which the failure happened
	Attempts int // Provider attempts made for the failing call
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("answer generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
