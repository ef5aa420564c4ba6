// Package errors provides the error taxonomy shared by the bus, the sync
// manager and the app adapters.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents the type of error that occurred
type ErrorCode string

const (
	ErrCodeValidationFailure ErrorCode = "VALIDATION_FAILURE"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeDuplicate         ErrorCode = "DUPLICATE"
	ErrCodeCapabilityMissing ErrorCode = "CAPABILITY_MISSING"
	ErrCodeRequestFailure    ErrorCode = "REQUEST_FAILURE"
	ErrCodeTimeout           ErrorCode = "TIMEOUT"
	ErrCodeStorageFailure    ErrorCode = "STORAGE_FAILURE"
)

// Kind groups error codes by how a caller is expected to react.
type Kind string

const (
	KindInvalid  Kind = "invalid"
	KindNotFound Kind = "not_found"
	KindConflict Kind = "conflict"
	KindInternal Kind = "internal"
	KindTimeout  Kind = "timeout"
)

// Operation represents the operation during which the error occurred
type Operation string

const (
	OpRegister        Operation = "register"
	OpLifecycle       Operation = "lifecycle"
	OpRequest         Operation = "request"
	OpPublish         Operation = "publish"
	OpCreateSignType  Operation = "create_sign_type"
	OpUpdateSignType  Operation = "update_sign_type"
	OpDeleteSignType  Operation = "delete_sign_type"
	OpAddTextField    Operation = "add_text_field"
	OpRemoveTextField Operation = "remove_text_field"
	OpEmit            Operation = "emit"
	OpJournal         Operation = "journal"
	OpConfig          Operation = "config"
)

// Sentinels matched through errors.Is on any SyncError carrying the code.
var (
	ErrInvalid   = errors.New("invalid input")
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

// SyncError represents an error raised by a sync operation
type SyncError struct {
	// Operation during which the error occurred
	Op Operation

	// Component that generated the error (e.g., "bus", "synckit")
	Component string

	// Underlying error
	Err error

	// Whether the operation can be retried
	Retryable bool

	// Error code for the error type
	Code ErrorCode

	// Kind is derived from Code when left empty
	Kind Kind

	// Metadata for additional context
	Metadata map[string]interface{}
}

func (e *SyncError) Error() string {
	var msg string
	if e.Component != "" {
		msg = fmt.Sprintf("%s operation failed in %s component", e.Op, e.Component)
	} else {
		msg = fmt.Sprintf("%s operation failed", e.Op)
	}

	if e.Code != "" {
		msg += fmt.Sprintf(" [%s]", e.Code)
	}

	return msg + fmt.Sprintf(": %v", e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the package sentinels by code.
func (e *SyncError) Is(target error) bool {
	switch target {
	case ErrInvalid:
		return e.Code == ErrCodeValidationFailure
	case ErrNotFound:
		return e.Code == ErrCodeNotFound
	case ErrDuplicate:
		return e.Code == ErrCodeDuplicate
	}
	return false
}

// Message returns the underlying cause text without the operation prefix.
func (e *SyncError) Message() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *SyncError) WithMetadata(key string, value interface{}) *SyncError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func kindFor(code ErrorCode) Kind {
	switch code {
	case ErrCodeValidationFailure, ErrCodeCapabilityMissing:
		return KindInvalid
	case ErrCodeNotFound:
		return KindNotFound
	case ErrCodeDuplicate:
		return KindConflict
	case ErrCodeTimeout:
		return KindTimeout
	default:
		return KindInternal
	}
}

func newCoded(op Operation, component string, code ErrorCode, cause error) *SyncError {
	return &SyncError{
		Op:        op,
		Component: component,
		Code:      code,
		Kind:      kindFor(code),
		Err:       cause,
	}
}

// NewValidationError creates a new validation-related SyncError
func NewValidationError(op Operation, cause error) *SyncError {
	return newCoded(op, "", ErrCodeValidationFailure, cause)
}

// NewNotFoundError creates a new SyncError for a missing sign type or field
func NewNotFoundError(op Operation, cause error) *SyncError {
	return newCoded(op, "", ErrCodeNotFound, cause)
}

// NewDuplicateError creates a new SyncError for a uniqueness violation
func NewDuplicateError(op Operation, cause error) *SyncError {
	return newCoded(op, "", ErrCodeDuplicate, cause)
}

// NewCapabilityError creates a new SyncError for an app missing required operations
func NewCapabilityError(op Operation, cause error) *SyncError {
	return newCoded(op, "bus", ErrCodeCapabilityMissing, cause)
}

// NewRequestError creates a new cross-app request SyncError
func NewRequestError(op Operation, cause error) *SyncError {
	e := newCoded(op, "bus", ErrCodeRequestFailure, cause)
	e.Retryable = true
	return e
}

// NewTimeoutError creates a new SyncError for an operation that ran out of time
func NewTimeoutError(op Operation, cause error) *SyncError {
	e := newCoded(op, "bus", ErrCodeTimeout, cause)
	e.Retryable = true
	return e
}

// NewStorageError creates a new storage-related SyncError
func NewStorageError(op Operation, cause error) *SyncError {
	e := newCoded(op, "store", ErrCodeStorageFailure, cause)
	e.Retryable = true
	return e
}

// New creates a new SyncError
func New(op Operation, err error) *SyncError {
	return &SyncError{
		Op:  op,
		Err: err,
	}
}

// NewWithComponent creates a new SyncError with component information
func NewWithComponent(op Operation, component string, err error) *SyncError {
	return &SyncError{
		Op:        op,
		Component: component,
		Err:       err,
	}
}

// IsRetryable checks if an error is a retryable SyncError
func IsRetryable(err error) bool {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Retryable
	}
	return false
}

// CodeOf returns the code of the first SyncError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Code
	}
	return ""
}

func IsNotFound(err error) bool   { return errors.Is(err, ErrNotFound) }
func IsDuplicate(err error) bool  { return errors.Is(err, ErrDuplicate) }
func IsValidation(err error) bool { return errors.Is(err, ErrInvalid) }
