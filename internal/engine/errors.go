package engine

import (
	"errors"
	"fmt"

	"github.com/stratumdb/stratum/internal/exec"
)

// PipelineError represents a failure detected by the write pipeline.
//
// Pipeline errors include:
//   - Constraint violations: the store rejected a statement (unique,
//     not-null, foreign-key), classified after the fact
//   - Connectivity: busy, locked, or broken connection
//   - Usage errors: the caller broke a pipeline precondition (concurrent
//     session use, unmapped entity, nullability pre-flight, staging
//     misconfiguration)
//   - Cleanup failures: a staging after-use action failed after the
//     primary mutation succeeded
//
// PipelineError includes structured fields for diagnostics; unset fields
// are omitted from the message.
type PipelineError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Detail is a human-readable description.
	Detail string

	// EntityName identifies the affected entity mapping, if any.
	EntityName string

	// Property identifies the property involved (pre-flight errors).
	Property string

	// Table identifies the physical table involved (statement errors).
	Table string

	// SessionUID identifies the unit of work that raised the error.
	SessionUID string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes pipeline errors.
type ErrorCode string

const (
	// ErrCodeUniqueViolation indicates a UNIQUE or PRIMARY KEY violation.
	ErrCodeUniqueViolation ErrorCode = "UNIQUE_VIOLATION"

	// ErrCodeNotNullViolation indicates the store rejected a null value.
	ErrCodeNotNullViolation ErrorCode = "NOT_NULL_VIOLATION"

	// ErrCodeForeignKeyViolation indicates a FOREIGN KEY violation.
	ErrCodeForeignKeyViolation ErrorCode = "FOREIGN_KEY_VIOLATION"

	// ErrCodeConstraintViolation is a constraint violation with no finer
	// classification.
	ErrCodeConstraintViolation ErrorCode = "CONSTRAINT_VIOLATION"

	// ErrCodeConnectivity indicates a busy, locked, or broken connection.
	ErrCodeConnectivity ErrorCode = "CONNECTIVITY"

	// ErrCodeExecution is a statement failure outside the classified kinds.
	ErrCodeExecution ErrorCode = "EXECUTION_FAILED"

	// ErrCodeSessionOwnership indicates concurrent use of one session.
	ErrCodeSessionOwnership ErrorCode = "SESSION_OWNERSHIP"

	// ErrCodeSessionClosed indicates use of a closed session.
	ErrCodeSessionClosed ErrorCode = "SESSION_CLOSED"

	// ErrCodeUnknownEntity indicates an entity name with no mapping.
	ErrCodeUnknownEntity ErrorCode = "UNKNOWN_ENTITY"

	// ErrCodeDetachedEntity indicates an operation that requires a managed
	// entity was given an unmanaged one.
	ErrCodeDetachedEntity ErrorCode = "DETACHED_ENTITY"

	// ErrCodePreflightNull indicates a non-nullable column still held null
	// after transient-reference nullification. No statement was sent.
	ErrCodePreflightNull ErrorCode = "PREFLIGHT_NULL"

	// ErrCodeStagingConfig indicates a staging-table misconfiguration.
	ErrCodeStagingConfig ErrorCode = "STAGING_CONFIG"

	// ErrCodeIdentityUnavailable indicates a missing identifier: an
	// assigned id that was never set, or a generated key the driver could
	// not return.
	ErrCodeIdentityUnavailable ErrorCode = "IDENTITY_UNAVAILABLE"

	// ErrCodeStaleState indicates a version-guarded statement matched no
	// row.
	ErrCodeStaleState ErrorCode = "STALE_STATE"

	// ErrCodeCleanupFailure indicates the staging after-use action failed
	// after the primary mutation succeeded.
	ErrCodeCleanupFailure ErrorCode = "CLEANUP_FAILURE"
)

// Error implements the error interface.
func (e *PipelineError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Detail)
	switch {
	case e.EntityName != "" && e.Property != "":
		msg += fmt.Sprintf(" (entity=%s, property=%s)", e.EntityName, e.Property)
	case e.EntityName != "":
		msg += fmt.Sprintf(" (entity=%s)", e.EntityName)
	case e.Table != "":
		msg += fmt.Sprintf(" (table=%s)", e.Table)
	}
	if e.SessionUID != "" {
		msg += fmt.Sprintf(" [session=%s]", e.SessionUID)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// AsPipelineError extracts a PipelineError from an error chain.
func AsPipelineError(err error) (*PipelineError, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsConstraintViolation returns true if the error is a store-reported
// constraint violation of any kind. Uses errors.As to handle wrapped
// errors.
func IsConstraintViolation(err error) bool {
	if pe, ok := AsPipelineError(err); ok {
		switch pe.Code {
		case ErrCodeUniqueViolation, ErrCodeNotNullViolation,
			ErrCodeForeignKeyViolation, ErrCodeConstraintViolation:
			return true
		}
	}
	return false
}

// IsUsageError returns true if the error is a caller mistake rather than a
// store condition.
func IsUsageError(err error) bool {
	if pe, ok := AsPipelineError(err); ok {
		switch pe.Code {
		case ErrCodeSessionOwnership, ErrCodeSessionClosed,
			ErrCodeUnknownEntity, ErrCodeDetachedEntity,
			ErrCodePreflightNull, ErrCodeStagingConfig,
			ErrCodeIdentityUnavailable:
			return true
		}
	}
	return false
}

// IsStaleState returns true if the error is an optimistic-lock failure.
func IsStaleState(err error) bool {
	pe, ok := AsPipelineError(err)
	return ok && pe.Code == ErrCodeStaleState
}

// IsCleanupFailure returns true if the error is a staging cleanup failure.
func IsCleanupFailure(err error) bool {
	pe, ok := AsPipelineError(err)
	return ok && pe.Code == ErrCodeCleanupFailure
}

// NewOwnershipError creates a PipelineError for concurrent session entry.
func NewOwnershipError(sessionUID string) *PipelineError {
	return &PipelineError{
		Code:       ErrCodeSessionOwnership,
		Detail:     "session entered concurrently from another goroutine",
		SessionUID: sessionUID,
	}
}

// NewClosedError creates a PipelineError for use of a closed session.
func NewClosedError(sessionUID string) *PipelineError {
	return &PipelineError{
		Code:       ErrCodeSessionClosed,
		Detail:     "session is closed",
		SessionUID: sessionUID,
	}
}

// NewUnknownEntityError creates a PipelineError for an unmapped entity name.
func NewUnknownEntityError(sessionUID, entityName string) *PipelineError {
	return &PipelineError{
		Code:       ErrCodeUnknownEntity,
		Detail:     "no mapping registered for entity",
		EntityName: entityName,
		SessionUID: sessionUID,
	}
}

// NewDetachedEntityError creates a PipelineError for an operation on an
// entity the session does not manage.
func NewDetachedEntityError(sessionUID, entityName, detail string) *PipelineError {
	return &PipelineError{
		Code:       ErrCodeDetachedEntity,
		Detail:     detail,
		EntityName: entityName,
		SessionUID: sessionUID,
	}
}

// NewPreflightNullError creates a PipelineError for a nullability
// pre-flight failure on the named property.
func NewPreflightNullError(sessionUID, entityName, property string) *PipelineError {
	return &PipelineError{
		Code:       ErrCodePreflightNull,
		Detail:     "null value in non-nullable column",
		EntityName: entityName,
		Property:   property,
		SessionUID: sessionUID,
	}
}

// NewIdentityUnavailableError creates a PipelineError for a missing
// identifier value.
func NewIdentityUnavailableError(sessionUID, entityName, detail string) *PipelineError {
	return &PipelineError{
		Code:       ErrCodeIdentityUnavailable,
		Detail:     detail,
		EntityName: entityName,
		SessionUID: sessionUID,
	}
}

// NewStaleStateError creates a PipelineError for a version-guarded
// statement that matched no row.
func NewStaleStateError(sessionUID, entityName, detail string) *PipelineError {
	return &PipelineError{
		Code:       ErrCodeStaleState,
		Detail:     detail,
		EntityName: entityName,
		SessionUID: sessionUID,
	}
}

// NewStagingConfigError creates a PipelineError for a staging-table
// misconfiguration.
func NewStagingConfigError(sessionUID, detail string) *PipelineError {
	return &PipelineError{
		Code:       ErrCodeStagingConfig,
		Detail:     detail,
		SessionUID: sessionUID,
	}
}

// NewCleanupFailureError creates a PipelineError reporting that the
// staging after-use action failed. Raised only when the primary mutation
// succeeded; after a primary failure the cleanup failure is logged and the
// primary error propagates instead.
func NewCleanupFailureError(sessionUID string, cause error) *PipelineError {
	return &PipelineError{
		Code:       ErrCodeCleanupFailure,
		Detail:     "staging after-use action failed",
		SessionUID: sessionUID,
		Err:        cause,
	}
}

// FromStatementError converts a classified statement failure into a
// PipelineError carrying the session uid. Errors that carry no statement
// classification pass through under ErrCodeExecution.
func FromStatementError(sessionUID string, err error) *PipelineError {
	pe := &PipelineError{
		Code:       ErrCodeExecution,
		Detail:     err.Error(),
		SessionUID: sessionUID,
		Err:        err,
	}
	serr, ok := exec.AsStatementError(err)
	if !ok {
		return pe
	}
	pe.Detail = serr.Err.Error()
	switch serr.Kind {
	case exec.KindUniqueViolation:
		pe.Code = ErrCodeUniqueViolation
	case exec.KindNotNullViolation:
		pe.Code = ErrCodeNotNullViolation
	case exec.KindForeignKeyViolation:
		pe.Code = ErrCodeForeignKeyViolation
	case exec.KindConstraint:
		pe.Code = ErrCodeConstraintViolation
	case exec.KindConnectivity:
		pe.Code = ErrCodeConnectivity
	}
	return pe
}
