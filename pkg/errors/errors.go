// Package errors implements the error kinds used throughout the flattening
// pipeline. It is adapted from a structured-application-error package: one
// concrete type, a closed set of kinds, optional causes and metadata, but
// narrowed to the six kinds the pipeline actually distinguishes instead of a
// generic catalog of error codes.
package errors

import (
	"fmt"
	"time"
)

// Kind is one of the error categories named by the pipeline's error handling
// design. It is a design-level category, not a Go type hierarchy: every
// Error carries exactly one Kind and callers branch on it with Is/Kind.
type Kind string

const (
	// Configuration errors are inconsistent or invalid settings discovered
	// at construction time (duplicate reserved field names, invalid
	// separator, unknown array mode, non-positive batch size). Always
	// fatal, surfaced before processing starts.
	Configuration Kind = "configuration"

	// Validation errors are malformed input reaching a public boundary
	// (unsupported input type, non-object JSON root, unknown output
	// format at save). Fatal at the call site.
	Validation Kind = "validation"

	// Parsing errors mean a single record could not be decoded (malformed
	// JSON line, non-object list element). Recoverable per recovery mode.
	Parsing Kind = "parsing"

	// Processing errors arose while flattening or extracting one record.
	// Recoverable per recovery mode, exactly like Parsing.
	Processing Kind = "processing"

	// Output errors mean a writer could not produce output (permission
	// denied, disk full, codec unavailable at write time). Fatal to the
	// run.
	Output Kind = "output"

	// MissingDependency means a requested codec or backend isn't
	// available (e.g. a columnar writer whose native library wasn't
	// linked in). Raised eagerly at writer construction.
	MissingDependency Kind = "missing_dependency"
)

// Recoverable reports whether errors of this kind are subject to
// recovery_mode (Parsing and Processing only); every other kind always
// aborts the run regardless of recovery_mode.
func (k Kind) Recoverable() bool {
	return k == Parsing || k == Processing
}

// Error is the single error type the pipeline raises. Component/Operation
// name where the error occurred for logging; Cause, if present, is the
// underlying error being wrapped.
type Error struct {
	Kind      Kind
	Component string
	Operation string
	Message   string
	Cause     error
	Timestamp time.Time
}

// New creates an Error of the given kind.
func New(kind Kind, component, operation, message string) *Error {
	return &Error{
		Kind:      kind,
		Component: component,
		Operation: operation,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Wrap sets cause as the error's underlying cause and returns the receiver.
func (e *Error) Wrap(cause error) *Error {
	e.Cause = cause
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Component, e.Operation, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Kind, e.Message)
}

// Unwrap exposes Cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether err is a pipeline Error of the given kind.
func Is(err error, kind Kind) bool {
	pe, ok := err.(*Error)
	return ok && pe.Kind == kind
}

// Configf creates a Configuration error with a formatted message.
func Configf(component, operation, format string, args ...interface{}) *Error {
	return New(Configuration, component, operation, fmt.Sprintf(format, args...))
}

// Validationf creates a Validation error with a formatted message.
func Validationf(component, operation, format string, args ...interface{}) *Error {
	return New(Validation, component, operation, fmt.Sprintf(format, args...))
}

// Parsingf creates a Parsing error with a formatted message.
func Parsingf(component, operation, format string, args ...interface{}) *Error {
	return New(Parsing, component, operation, fmt.Sprintf(format, args...))
}

// Processingf creates a Processing error with a formatted message.
func Processingf(component, operation, format string, args ...interface{}) *Error {
	return New(Processing, component, operation, fmt.Sprintf(format, args...))
}

// Outputf creates an Output error with a formatted message.
func Outputf(component, operation, format string, args ...interface{}) *Error {
	return New(Output, component, operation, fmt.Sprintf(format, args...))
}

// MissingDependencyf creates a MissingDependency error with a formatted message.
func MissingDependencyf(component, operation, format string, args ...interface{}) *Error {
	return New(MissingDependency, component, operation, fmt.Sprintf(format, args...))
}
