// Package merrors defines the tagged error kinds propagated across the
// memory engine's component boundaries, per the error handling design.
package merrors

import (
	"context"
	"errors"
	"fmt"
)

// Kind is a closed set of error classifications. Callers branch on Kind,
// never on error strings.
type Kind string

const (
	ConfigMissing            Kind = "config_missing"
	InvalidInput             Kind = "invalid_input"
	EmbeddingFailed          Kind = "embedding_failed"
	LLMCallFailed            Kind = "llm_call_failed"
	LLMParseError            Kind = "llm_parse_error"
	ExtractionFailed         Kind = "extraction_failed"
	PersistFailed            Kind = "persist_failed"
	ActivationUpdateConflict Kind = "activation_update_conflict"
	QueryTimeout             Kind = "query_timeout"
	FusionFailed             Kind = "fusion_failed"
	WorkflowNodeTimeout      Kind = "workflow_node_timeout"
	WorkflowCanceled         Kind = "workflow_canceled"
	EmptyQuery               Kind = "empty_query"
)

// Error wraps an underlying error with a Kind and the operation that
// produced it, so a caller can log `Op` while branching on `Kind`.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a tagged Error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err (or something it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or "" if err does not carry one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsTransient reports whether an error is worth retrying, mirroring the
// orchestrator's transient-error heuristic: an expired context deadline
// and the kinds the error table marks retryable (QueryTimeout among
// them). A cancelled context is not treated as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch KindOf(err) {
	case EmbeddingFailed, LLMCallFailed, QueryTimeout, ActivationUpdateConflict:
		return true
	}
	return false
}
