// Package provision implements the provisioning engine for cloudmast:
// lifecycle state machine, bounded-retry action polling, task chains and
// the backend adapter contract shared by all cloud providers.
package provision

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of a backend error for retry
// and compensation logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed on retry.
	// Examples: network timeouts, temporary service unavailability.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassThrottled indicates rate limiting or quota exhaustion.
	// Should be retried with a longer delay.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassConflict indicates a resource state conflict.
	// Examples: an operation already in flight for the resource.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassPermission indicates the credentials lack access for the
	// attempted action (e.g. a read-only API token). Never retried; raises
	// a token scope alert as a compensating action.
	ErrorClassPermission ErrorClass = "permission"

	// ErrorClassNotFound indicates the vendor-side object does not exist.
	// During teardown this means the object already reached its terminal
	// state remotely.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Examples: invalid configuration, unsupported operation.
	ErrorClassPermanent ErrorClass = "permanent"
)

// BackendError represents a classified error with provider context.
type BackendError struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Provider is the backend kind that produced the error, if applicable.
	Provider string `json:"provider,omitempty"`

	// Resource is the resource ID that caused the error, if applicable.
	Resource string `json:"resource,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	if e.Resource != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (resource=%s, operation=%s): %s",
			e.Class, e.Message, e.Resource, e.Operation, e.unwrapMessage())
	}
	if e.Resource != "" {
		return fmt.Sprintf("[%s] %s (resource=%s): %s",
			e.Class, e.Message, e.Resource, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *BackendError) Unwrap() error {
	return e.Err
}

func (e *BackendError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *BackendError) Is(target error) bool {
	t, ok := target.(*BackendError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *BackendError {
	return &BackendError{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewThrottledError creates a new throttled error.
func NewThrottledError(message string, err error) *BackendError {
	return &BackendError{Class: ErrorClassThrottled, Message: message, Err: err}
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string, err error) *BackendError {
	return &BackendError{Class: ErrorClassConflict, Message: message, Err: err}
}

// NewPermissionError creates a new permission (token scope) error.
func NewPermissionError(message string, err error) *BackendError {
	return &BackendError{Class: ErrorClassPermission, Message: message, Err: err, Code: ErrCodeTokenScope}
}

// NewNotFoundError creates a new not-found error.
func NewNotFoundError(message string, err error) *BackendError {
	return &BackendError{Class: ErrorClassNotFound, Message: message, Err: err, Code: ErrCodeNotFound}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *BackendError {
	return &BackendError{Class: ErrorClassPermanent, Message: message, Err: err}
}

// WithProvider adds provider context to an error.
func (e *BackendError) WithProvider(provider string) *BackendError {
	e.Provider = provider
	return e
}

// WithResource adds resource context to an error.
func (e *BackendError) WithResource(resourceID string) *BackendError {
	e.Resource = resourceID
	return e
}

// WithOperation adds operation context to an error.
func (e *BackendError) WithOperation(operation string) *BackendError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *BackendError) WithCode(code string) *BackendError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *BackendError) WithDetail(key string, value interface{}) *BackendError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *BackendError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsThrottled returns true if the error is classified as throttled.
func IsThrottled(err error) bool {
	var e *BackendError
	if errors.As(err, &e) {
		return e.Class == ErrorClassThrottled
	}
	return false
}

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool {
	var e *BackendError
	if errors.As(err, &e) {
		return e.Class == ErrorClassConflict
	}
	return false
}

// IsPermissionDenied returns true if the error is classified as a
// permission (token scope) error.
func IsPermissionDenied(err error) bool {
	var e *BackendError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermission
	}
	return false
}

// IsNotFound returns true if the error is classified as not-found.
func IsNotFound(err error) bool {
	var e *BackendError
	if errors.As(err, &e) {
		return e.Class == ErrorClassNotFound
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *BackendError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// IsRetryable returns true if the error can be retried within an attempt
// budget. Transient, throttled, and conflict errors are retryable;
// permission, not-found and permanent errors are surfaced immediately.
func IsRetryable(err error) bool {
	return IsTransient(err) || IsThrottled(err) || IsConflict(err)
}

// Common error codes.
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeAlreadyExists   = "ALREADY_EXISTS"
	ErrCodeTokenScope      = "TOKEN_SCOPE"
	ErrCodeTimeout         = "TIMEOUT"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeConflict        = "CONFLICT"
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeBackendFailed   = "BACKEND_FAILED"
	ErrCodeActionFailed    = "ACTION_FAILED"
	ErrCodePollExhausted   = "POLL_EXHAUSTED"
	ErrCodeInvalidState    = "INVALID_STATE"
	ErrCodeOperationActive = "OPERATION_ACTIVE"
	ErrCodePolicyDenied    = "POLICY_DENIED"
)
