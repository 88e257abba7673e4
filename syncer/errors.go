package syncer

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tidemark/normstore/resource"
)

// ErrorCode categorizes coordinator errors.
type ErrorCode string

const (
	// ErrCodeOperationInProgress indicates a concurrent write was
	// attempted while another operation for the same identifier was in
	// flight.
	ErrCodeOperationInProgress ErrorCode = "OPERATION_IN_PROGRESS"

	// ErrCodeRemoteFailure indicates a transport or server failure on a
	// remote read or write. The original failure detail is carried in
	// Cause (and Status for HTTP-shaped remotes).
	ErrCodeRemoteFailure ErrorCode = "REMOTE_FAILURE"

	// ErrCodeStateMismatch indicates a remote write was requested for a
	// record not in the corresponding local state (e.g. create without a
	// NEW record).
	ErrCodeStateMismatch ErrorCode = "STATE_MISMATCH"
)

// Error is a coordinator error with structured fields for diagnostics.
type Error struct {
	Code       ErrorCode
	Identifier resource.Identifier
	Message    string
	Status     int // remote status code, 0 if not applicable
	Cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Identifier.Valid() {
		msg = fmt.Sprintf("%s (%s)", msg, e.Identifier)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsOperationInProgress returns true if the error is a busy-identifier
// rejection. Uses errors.As to handle wrapped errors.
func IsOperationInProgress(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Code == ErrCodeOperationInProgress
}

// IsRemoteFailure returns true if the error is a remote read/write
// failure.
func IsRemoteFailure(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Code == ErrCodeRemoteFailure
}

// IsNotFound returns true if the error is a remote failure carrying a
// not-found status. Single-resource reads treat this as absence rather
// than failure.
func IsNotFound(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Code == ErrCodeRemoteFailure && ce.Status == http.StatusNotFound
}

// IsStateMismatch returns true if the error is a local-state contract
// violation.
func IsStateMismatch(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Code == ErrCodeStateMismatch
}

// NewRemoteError builds a REMOTE_FAILURE error. Remote implementations
// use it to surface status codes and server-provided detail.
func NewRemoteError(status int, message string, cause error) *Error {
	return &Error{
		Code:    ErrCodeRemoteFailure,
		Message: message,
		Status:  status,
		Cause:   cause,
	}
}

func newInProgressError(id resource.Identifier) *Error {
	return &Error{
		Code:       ErrCodeOperationInProgress,
		Identifier: id,
		Message:    "an operation for this identifier is already in flight",
	}
}

func newStateMismatchError(id resource.Identifier, want, got string) *Error {
	return &Error{
		Code:       ErrCodeStateMismatch,
		Identifier: id,
		Message:    fmt.Sprintf("record must be %s, is %s", want, got),
	}
}

// remoteFailure wraps any error coming back from a Remote so callers see
// a uniform REMOTE_FAILURE, preserving an already-shaped *Error.
func remoteFailure(id resource.Identifier, err error) *Error {
	var ce *Error
	if errors.As(err, &ce) && ce.Code == ErrCodeRemoteFailure {
		if !ce.Identifier.Valid() {
			clone := *ce
			clone.Identifier = id
			return &clone
		}
		return ce
	}
	return &Error{
		Code:       ErrCodeRemoteFailure,
		Identifier: id,
		Message:    "remote operation failed",
		Cause:      err,
	}
}
