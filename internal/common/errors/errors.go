// Package errors provides standardized error handling for the assistant pipeline.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeUnauthenticated   ErrorCode = "UNAUTHENTICATED"
	ErrCodePermissionDenied  ErrorCode = "PERMISSION_DENIED"
	ErrCodeInvalidArgument   ErrorCode = "INVALID_ARGUMENT"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeOracleUnavailable ErrorCode = "ORACLE_UNAVAILABLE"
	ErrCodeInternal          ErrorCode = "INTERNAL"
)

// DenyReason distinguishes authorization denials for UI messaging.
type DenyReason string

const (
	DenyInsufficientRole     DenyReason = "INSUFFICIENT_ROLE"
	DenyProtectedTarget      DenyReason = "PROTECTED_TARGET"
	DenyDisallowedTransition DenyReason = "DISALLOWED_TRANSITION"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// AsStandard extracts a *StandardError from an error chain, or nil.
func AsStandard(err error) *StandardError {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	return nil
}

// ==========================
// 2. Error Constructors
// ==========================

// NewUnauthenticatedError reports a request with no valid caller identity.
func NewUnauthenticatedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnauthenticated,
		Message:   "No valid caller identity",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPermissionDeniedError reports an authorization gate rejection.
// The reason tag is machine-checkable metadata.
func NewPermissionDeniedError(reason DenyReason, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodePermissionDenied,
		Message:   "Not permitted for this role",
		Details:   details,
		Retryable: false,
		Metadata:  map[string]interface{}{"reason": string(reason)},
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidArgumentError reports a required field missing or malformed
// beyond what normalization can repair.
func NewInvalidArgumentError(field, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidArgument,
		Message:   "Invalid or missing argument",
		Details:   details,
		Retryable: false,
		Metadata:  map[string]interface{}{"field": field},
		Timestamp: time.Now().UTC(),
	}
}

// NewNotFoundError reports an identifier lookup with no matching record.
// Callers treat this as a normal zero-result outcome, not a failure.
func NewNotFoundError(entity, identifier string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFound,
		Message:   fmt.Sprintf("No matching %s found", entity),
		Details:   identifier,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewOracleUnavailableError reports an oracle timeout or transport failure.
// The caller may retry the whole command.
func NewOracleUnavailableError(err error) *StandardError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &StandardError{
		Code:      ErrCodeOracleUnavailable,
		Message:   "Language model is unavailable",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInternalError wraps an unexpected collaborator failure. Details are
// logged but never surfaced to the caller.
func NewInternalError(err error) *StandardError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Internal error",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Classification Helpers
// ==========================

// IsNotFound reports whether err is a NOT_FOUND StandardError.
func IsNotFound(err error) bool {
	stdErr := AsStandard(err)
	return stdErr != nil && stdErr.Code == ErrCodeNotFound
}

// IsRetryable reports whether the caller may retry the whole command.
func IsRetryable(err error) bool {
	stdErr := AsStandard(err)
	return stdErr != nil && stdErr.Retryable
}

// GetErrorCategory groups codes for metrics labels.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeUnauthenticated, ErrCodePermissionDenied:
		return "auth"
	case ErrCodeInvalidArgument, ErrCodeNotFound:
		return "request"
	case ErrCodeOracleUnavailable:
		return "oracle"
	default:
		return "internal"
	}
}
