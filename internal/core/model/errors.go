package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrValidation       = errors.New("validation error")
	ErrConfiguration    = errors.New("configuration error")
	ErrEmbeddingVersion = errors.New("embedding version mismatch")
	ErrNotFound         = errors.New("not found")
)

// ValidationError reports a malformed entity, relationship or evidence reference.
type ValidationError struct {
	Ref    Ref
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Ref.ID == "" && e.Ref.Kind == "" {
		return fmt.Sprintf("validation error: %s", e.Reason)
	}
	return fmt.Sprintf("validation error: %s: %s", e.Ref, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func NewValidationError(kind RefKind, id, format string, args ...interface{}) error {
	return &ValidationError{Ref: Ref{Kind: kind, ID: id}, Reason: fmt.Sprintf(format, args...)}
}

// ConfigurationError reports invalid fusion weights or out-of-range parameters.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

func NewConfigurationError(field, format string, args ...interface{}) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// EmbeddingVersionError means a query vector cannot be compared with the stored corpus.
type EmbeddingVersionError struct {
	Query string
	Known []string
}

func (e *EmbeddingVersionError) Error() string {
	known := append([]string(nil), e.Known...)
	sort.Strings(known)
	if len(known) == 0 {
		return fmt.Sprintf("embedding version mismatch: query uses %q but no embeddings are stored", e.Query)
	}
	return fmt.Sprintf("embedding version mismatch: query uses %q, corpus has [%s]", e.Query, strings.Join(known, ", "))
}

func (e *EmbeddingVersionError) Is(target error) bool { return target == ErrEmbeddingVersion }

// Warning is attached to a response for degraded but answerable conditions. It never aborts a query.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	WarnPartialData         = "partial_data"
	WarnStaleScores         = "stale_scores"
	WarnEmptyCandidates     = "empty_candidates"
	WarnSemanticUnavailable = "semantic_unavailable"
	WarnUnsupportedDropped  = "unsupported_dropped"
)
