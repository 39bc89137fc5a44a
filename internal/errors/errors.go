// Package errors provides the unified error taxonomy for the arbiter
// engine. Every failure surfaced by the audit, consensus and settlement
// pipelines is one of a small set of typed categories with a stable
// machine-readable code, so callers can branch on classification without
// string matching.
package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies an error by how the pipeline must react to it.
type ErrorType string

const (
	// ErrorTypeStructural marks violations of graph construction rules.
	// Structural errors are fatal to the graph being built.
	ErrorTypeStructural ErrorType = "STRUCTURAL"

	// ErrorTypeIntegrity marks audit findings. Integrity errors are
	// recorded against their stage and the audit keeps running.
	ErrorTypeIntegrity ErrorType = "INTEGRITY"

	// ErrorTypeInput marks unusable input (fetch failures, undecodable
	// payloads). Input errors abort the operation with no partial result.
	ErrorTypeInput ErrorType = "INPUT"

	// ErrorTypeConsensusGap marks the explicit absence of consensus,
	// distinct from any numeric outcome.
	ErrorTypeConsensusGap ErrorType = "CONSENSUS_GAP"

	// ErrorTypeConfig marks invalid configuration. Config errors are
	// raised when a component is configured, before anything runs.
	ErrorTypeConfig ErrorType = "CONFIG"

	// ErrorTypeNotFound marks lookups that matched nothing.
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeConflict marks state transitions rejected by the current
	// state, such as a reveal before the commit window closed.
	ErrorTypeConflict ErrorType = "CONFLICT"

	// ErrorTypeExternal marks failures of downstream dependencies.
	ErrorTypeExternal ErrorType = "EXTERNAL"

	// ErrorTypeInternal marks everything that should never happen.
	ErrorTypeInternal ErrorType = "INTERNAL"
)

// ErrorSeverity indicates operational impact for logging and alerting.
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "LOW"
	SeverityMedium   ErrorSeverity = "MEDIUM"
	SeverityHigh     ErrorSeverity = "HIGH"
	SeverityCritical ErrorSeverity = "CRITICAL"
)

// Stable codes carried by structural errors. Consumers key off these, so
// they are part of the public contract and never renamed.
const (
	CodeInvalidNode      = "INVALID_NODE"
	CodeMissingParent    = "MISSING_PARENT"
	CodeNonMonotonicTime = "NON_MONOTONIC_TIME"
	CodeConflictingNode  = "CONFLICTING_NODE"
	CodeCycleDetected    = "CYCLE_DETECTED"
)

// Error is the unified error value used across the engine.
type Error struct {
	Type      ErrorType
	Code      string
	Message   string
	Details   map[string]interface{}
	Operation string
	Resource  string
	Severity  ErrorSeverity
	Retryable bool
	Cause     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Type, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors sharing type and code, so sentinel comparisons work
// without identity.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Type == other.Type && e.Code == other.Code
}

// WithDetail returns a copy carrying one more detail entry.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	clone := *e
	clone.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		clone.Details[k] = v
	}
	clone.Details[key] = value
	return &clone
}

// Builder assembles an Error fluently.
type Builder struct {
	err *Error
}

// NewError starts building an error of the given type.
func NewError(errType ErrorType, code, message string) *Builder {
	return &Builder{
		err: &Error{
			Type:     errType,
			Code:     code,
			Message:  message,
			Severity: SeverityMedium,
		},
	}
}

// WithDetails attaches arbitrary structured context.
func (b *Builder) WithDetails(details map[string]interface{}) *Builder {
	b.err.Details = details
	return b
}

// WithOperation records the operation that failed.
func (b *Builder) WithOperation(operation string) *Builder {
	b.err.Operation = operation
	return b
}

// WithResource records the resource involved.
func (b *Builder) WithResource(resource string) *Builder {
	b.err.Resource = resource
	return b
}

// WithSeverity overrides the default severity.
func (b *Builder) WithSeverity(severity ErrorSeverity) *Builder {
	b.err.Severity = severity
	return b
}

// WithRetryable marks whether retrying can help.
func (b *Builder) WithRetryable(retryable bool) *Builder {
	b.err.Retryable = retryable
	return b
}

// WithCause attaches the underlying error.
func (b *Builder) WithCause(cause error) *Builder {
	b.err.Cause = cause
	return b
}

// Build returns the constructed error.
func (b *Builder) Build() *Error {
	return b.err
}

// Structural creates a graph construction error.
func Structural(code, message string) *Builder {
	return NewError(ErrorTypeStructural, code, message).
		WithSeverity(SeverityHigh).
		WithRetryable(false)
}

// Integrity creates an audit finding.
func Integrity(code, message string) *Builder {
	return NewError(ErrorTypeIntegrity, code, message).
		WithSeverity(SeverityMedium).
		WithRetryable(false)
}

// Input creates an unusable-input error.
func Input(code, message string) *Builder {
	return NewError(ErrorTypeInput, code, message).
		WithSeverity(SeverityMedium).
		WithRetryable(true)
}

// ConsensusGap creates an explicit no-consensus error.
func ConsensusGap(code, message string) *Builder {
	return NewError(ErrorTypeConsensusGap, code, message).
		WithSeverity(SeverityMedium).
		WithRetryable(false)
}

// Config creates a configuration rejection.
func Config(code, message string) *Builder {
	return NewError(ErrorTypeConfig, code, message).
		WithSeverity(SeverityHigh).
		WithRetryable(false)
}

// NotFound creates a lookup miss.
func NotFound(code, message string) *Builder {
	return NewError(ErrorTypeNotFound, code, message).
		WithSeverity(SeverityLow).
		WithRetryable(false)
}

// Conflict creates a state transition rejection.
func Conflict(code, message string) *Builder {
	return NewError(ErrorTypeConflict, code, message).
		WithSeverity(SeverityMedium).
		WithRetryable(false)
}

// External creates a downstream dependency failure.
func External(code, message string) *Builder {
	return NewError(ErrorTypeExternal, code, message).
		WithSeverity(SeverityHigh).
		WithRetryable(true)
}

// Internal creates an invariant violation.
func Internal(code, message string) *Builder {
	return NewError(ErrorTypeInternal, code, message).
		WithSeverity(SeverityCritical).
		WithRetryable(false)
}

// IsType reports whether err carries the given classification.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == errType
	}
	return false
}

// IsStructural reports whether err is a graph construction failure.
func IsStructural(err error) bool { return IsType(err, ErrorTypeStructural) }

// IsIntegrity reports whether err is an audit finding.
func IsIntegrity(err error) bool { return IsType(err, ErrorTypeIntegrity) }

// IsInput reports whether err is an unusable-input failure.
func IsInput(err error) bool { return IsType(err, ErrorTypeInput) }

// IsConsensusGap reports whether err is an explicit no-consensus outcome.
func IsConsensusGap(err error) bool { return IsType(err, ErrorTypeConsensusGap) }

// IsConfig reports whether err is a configuration rejection.
func IsConfig(err error) bool { return IsType(err, ErrorTypeConfig) }

// IsNotFound reports whether err is a lookup miss.
func IsNotFound(err error) bool { return IsType(err, ErrorTypeNotFound) }

// IsConflict reports whether err is a state transition rejection.
func IsConflict(err error) bool { return IsType(err, ErrorTypeConflict) }

// CodeOf extracts the stable code, or "" for foreign errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// As is a convenience passthrough so callers need only this package.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
