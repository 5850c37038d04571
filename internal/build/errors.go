package build

import (
	"errors"
	"fmt"
)

// Error is an engine-level failure: a misuse of the Runner rather than the
// failure of a service. Service failures are reported through Result.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// TargetID identifies the affected target, if any.
	TargetID string

	// ServiceID identifies the affected service, if any.
	ServiceID string
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeDuplicateService indicates two distinct services share an id.
	ErrCodeDuplicateService ErrorCode = "DUPLICATE_SERVICE"

	// ErrCodeDuplicateTarget indicates two distinct targets share an id.
	ErrCodeDuplicateTarget ErrorCode = "DUPLICATE_TARGET"

	// ErrCodeNilService indicates a nil service was called or registered.
	ErrCodeNilService ErrorCode = "NIL_SERVICE"

	// ErrCodeInvalidTarget indicates a target definition is incomplete.
	ErrCodeInvalidTarget ErrorCode = "INVALID_TARGET"

	// ErrCodeInternal indicates a broken engine invariant.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.TargetID != "":
		return fmt.Sprintf("%s: %s (target=%q)", e.Code, e.Message, e.TargetID)
	case e.ServiceID != "":
		return fmt.Sprintf("%s: %s (service=%q)", e.Code, e.Message, e.ServiceID)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// IsDuplicate reports whether err is a duplicate service or target registration.
// Uses errors.As to handle wrapped errors.
func IsDuplicate(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrCodeDuplicateService || e.Code == ErrCodeDuplicateTarget
	}
	return false
}

// HasCode reports whether err is an *Error with the given code.
func HasCode(err error, code ErrorCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// UnavailableError signals that a dependency did not produce a value.
// Returned by TryBuild when the dependency failed or was skipped; an input
// function that returns it makes its own target skipped rather than failed.
type UnavailableError struct {
	TargetID string
	Status   Status
}

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%q %s", e.TargetID, e.Status)
}

// IsUnavailable reports whether err is, or wraps, an UnavailableError.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

func newDuplicateServiceError(id string) *Error {
	return &Error{
		Code:      ErrCodeDuplicateService,
		Message:   "cannot have more than one service with this id",
		ServiceID: id,
	}
}

func newDuplicateTargetError(id string) *Error {
	return &Error{
		Code:     ErrCodeDuplicateTarget,
		Message:  "cannot have more than one target with this id",
		TargetID: id,
	}
}

func newInvalidTargetError(id, msg string) *Error {
	return &Error{
		Code:     ErrCodeInvalidTarget,
		Message:  msg,
		TargetID: id,
	}
}
