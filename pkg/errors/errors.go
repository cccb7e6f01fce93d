package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeValidation represents malformed input (empty content, unknown
	// role, unknown node kind). Never retried.
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeReferential represents a delete of a node that is still
	// referenced without cascade permission.
	ErrorTypeReferential ErrorType = "referential"
	// ErrorTypeTransient represents connectivity/timeout failures talking to
	// the graph backend. Retried with backoff before being surfaced.
	ErrorTypeTransient ErrorType = "transient"
	// ErrorTypeConflict represents an optimistic re-check failure: the node
	// state changed since it was read (already merged or deleted).
	ErrorTypeConflict ErrorType = "conflict"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// ErrType returns the error category; promoted through every typed wrapper
func (e *BaseError) ErrType() ErrorType {
	return e.Type
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Validation Errors

// ErrValidation is returned for malformed caller input
type ErrValidation struct {
	*BaseError
	Field string
}

func NewValidation(field, reason string) *ErrValidation {
	return &ErrValidation{
		BaseError: NewBaseError(ErrorTypeValidation, fmt.Sprintf("invalid %s: %s", field, reason), nil),
		Field:     field,
	}
}

// Referential Errors

// ErrReferential is returned when deleting a node that still has incident
// relationships and the caller did not request cascade
type ErrReferential struct {
	*BaseError
	NodeID   string
	RefCount int64
}

func NewReferential(nodeID string, refCount int64) *ErrReferential {
	return &ErrReferential{
		BaseError: NewBaseError(ErrorTypeReferential, fmt.Sprintf("node %s still has %d relationship(s)", nodeID, refCount), nil),
		NodeID:    nodeID,
		RefCount:  refCount,
	}
}

// Transient Errors

// ErrTransientStore is returned after the retry budget against the graph
// backend is exhausted
type ErrTransientStore struct {
	*BaseError
	Attempts int
}

func NewTransientStore(attempts int, err error) *ErrTransientStore {
	return &ErrTransientStore{
		BaseError: NewBaseError(ErrorTypeTransient, fmt.Sprintf("store unavailable after %d attempt(s)", attempts), err),
		Attempts:  attempts,
	}
}

// Conflict Errors

// ErrConflict is returned when an optimistic re-check finds the node state
// changed since it was read
type ErrConflict struct {
	*BaseError
	NodeID string
}

func NewConflict(nodeID, reason string) *ErrConflict {
	return &ErrConflict{
		BaseError: NewBaseError(ErrorTypeConflict, fmt.Sprintf("node %s: %s", nodeID, reason), nil),
		NodeID:    nodeID,
	}
}

// Helper functions

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		if typed, ok := err.(interface{ ErrType() ErrorType }); ok {
			return typed.ErrType() == errType
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsRetryable checks if an error is worth retrying at the store boundary
func IsRetryable(err error) bool {
	return IsErrorType(err, ErrorTypeTransient)
}

// IsConflict reports whether err is an optimistic re-check failure
func IsConflict(err error) bool {
	return IsErrorType(err, ErrorTypeConflict)
}

// IsValidation reports whether err is malformed-input
func IsValidation(err error) bool {
	return IsErrorType(err, ErrorTypeValidation)
}

// IsReferential reports whether err is a blocked non-cascade delete
func IsReferential(err error) bool {
	return IsErrorType(err, ErrorTypeReferential)
}
