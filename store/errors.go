package store

import (
	"errors"
	"fmt"

	"github.com/tidemark/normstore/resource"
)

// ErrorCode categorizes store contract violations.
type ErrorCode string

const (
	// ErrCodeDuplicateResource indicates a POST against an identifier
	// already present and not previously deleted.
	ErrCodeDuplicateResource ErrorCode = "DUPLICATE_RESOURCE"

	// ErrCodeNotFound indicates an operation against an unknown identifier.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeInvalidResource indicates a resource without a usable identity.
	ErrCodeInvalidResource ErrorCode = "INVALID_RESOURCE"
)

// Error is a synchronous store contract violation, reported immediately
// at the call site. It carries the affected identifier for diagnostics.
type Error struct {
	Code       ErrorCode
	Identifier resource.Identifier
	Message    string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Identifier.Valid() {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Identifier)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsDuplicate returns true if the error is a duplicate-resource violation.
// Uses errors.As to handle wrapped errors.
func IsDuplicate(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == ErrCodeDuplicateResource
}

// IsNotFound returns true if the error is a not-found violation.
func IsNotFound(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == ErrCodeNotFound
}

func newDuplicateError(id resource.Identifier) *Error {
	return &Error{
		Code:       ErrCodeDuplicateResource,
		Identifier: id,
		Message:    "resource already present and not pending deletion",
	}
}

func newNotFoundError(id resource.Identifier) *Error {
	return &Error{
		Code:       ErrCodeNotFound,
		Identifier: id,
		Message:    "no record for identifier",
	}
}

func newInvalidResourceError(id resource.Identifier) *Error {
	return &Error{
		Code:       ErrCodeInvalidResource,
		Identifier: id,
		Message:    "resource must carry a non-empty type and id",
	}
}
