// Package errors defines typed errors with categories for user-friendly reporting.
// It provides a structured approach to error handling with machine-readable error kinds
// and human-friendly messages, so the query pipeline can decide which failures are
// surfaced to the caller and which degrade to a best-effort result.
//
// The package supports wrapping underlying errors while maintaining error kind information.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// Connection indicates a store could not be reached or an adapter could not be built.
	Connection Kind = "connection_error"
	// SafetyRejected indicates the sanitizer refused a query.
	SafetyRejected Kind = "safety_rejected"
	// Execution indicates the store failed while running an accepted query.
	Execution Kind = "execution_error"
	// Normalization indicates a raw result could not be converted to portable records.
	Normalization Kind = "normalization_error"
	// Cache indicates a failure of the result cache backing store.
	Cache Kind = "cache_error"
	// Config indicates an invalid or unsupported configuration.
	Config Kind = "config_error"
	// Proposal indicates the query proposer failed to produce a query.
	Proposal Kind = "proposal_failed"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// Newf is New with a formatted message.
func Newf(kind Kind, format string, args ...any) *E {
	return &E{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the outermost *E in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf returns the human-friendly message of err, falling back to err.Error().
func MessageOf(err error) string {
	var e *E
	if stderrors.As(err, &e) {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
