package types

import (
	"errors"
	"fmt"
)

var (
	ErrConfig               = errors.New("configuration error")
	ErrExtraction           = errors.New("extraction error")
	ErrClassification       = errors.New("classification error")
	ErrSuggestion           = errors.New("suggestion error")
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	ErrCancelled            = errors.New("run cancelled")
	ErrNotFound             = errors.New("not found")
)

type ConfigError struct {
	Field  string
	Reason string
}

func NewConfigError(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid configuration: %s", e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

// ExtractionError is returned for unreadable, encrypted or corrupt input.
type ExtractionError struct {
	Source string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Source, e.Err)
}

func (e *ExtractionError) Unwrap() []error { return []error{ErrExtraction, e.Err} }

type ClassificationError struct {
	ChunkID  string
	Attempts int
	Err      error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classify chunk %s after %d attempts: %v", e.ChunkID, e.Attempts, e.Err)
}

func (e *ClassificationError) Unwrap() []error { return []error{ErrClassification, e.Err} }

type SuggestionError struct {
	ChunkID string
	Phrase  string
	Err     error
}

func (e *SuggestionError) Error() string {
	return fmt.Sprintf("suggest for %q in chunk %s: %v", e.Phrase, e.ChunkID, e.Err)
}

func (e *SuggestionError) Unwrap() []error { return []error{ErrSuggestion, e.Err} }

// RetrievalError marks the reference index as unreachable.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("reference index unavailable: %v", e.Err)
}

func (e *RetrievalError) Unwrap() []error { return []error{ErrRetrievalUnavailable, e.Err} }
