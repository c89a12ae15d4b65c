package types

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the store, secret store and token layers.
// Callers match them with errors.Is.
var (
	// ErrNotFound is returned when an object (or a token's owning object) does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned by create when an object with the same name exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrConflict is returned by a conditional replace whose resource version is stale.
	ErrConflict = errors.New("conflict")

	// ErrCursorExpired is returned by a backend list page when the continuation
	// cursor is no longer valid and the scan has to start over.
	ErrCursorExpired = errors.New("list cursor expired")

	// ErrListRestartsExhausted is returned when a list scan kept losing its cursor.
	ErrListRestartsExhausted = errors.New("list restarted too many times")

	// ErrInvalidToken covers malformed, unsigned-by-us and undecodable tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken is returned for a correctly signed token past its expiry.
	ErrExpiredToken = errors.New("token expired")

	// ErrRevokedToken is returned for a valid, unexpired token that is no longer stored.
	ErrRevokedToken = errors.New("token revoked")
)

// TransportError wraps a failure talking to the backing store (network,
// authentication, server errors). The underlying error is kept unchanged.
type TransportError struct {
	Op  string
	Err error
}

// Error returns the error message.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying backend error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError wraps err as a TransportError for operation op.
func NewTransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Err: err}
}

// IsTransportError checks if an error is (or wraps) a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// ValidationError represents an error that occurs during validation.
type ValidationError struct {
	Message string
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a new ValidationError with the given message.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		Message: message,
	}
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
