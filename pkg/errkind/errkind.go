// Package errkind provides the structured error type used across the
// engine's core packages: resolve, validate, policy, opexec, journal,
// txn and engine.
package errkind

import (
	"errors"
	"fmt"
)

// Code is a stable identifier for a class of engine error.
type Code string

const (
	// Input / validation
	NonAbsoluteRoot      Code = "NON_ABSOLUTE_ROOT"
	RootEscape           Code = "ROOT_ESCAPE"
	SymlinkPolicy        Code = "SYMLINK_POLICY"
	InvalidPath          Code = "INVALID_PATH"
	StructurallyInvalid  Code = "STRUCTURALLY_INVALID_OP"

	// Policy
	DestinationExists  Code = "DESTINATION_EXISTS"
	PolicyViolation    Code = "POLICY_VIOLATION"
	CrossDeviceBlocked Code = "CROSS_DEVICE"
	MaxBytesExceeded   Code = "MAX_BYTES_EXCEEDED"
	HashCollision      Code = "HASH_COLLISION"

	// Operational
	SourceMissing   Code = "SOURCE_MISSING"
	PermissionDenied Code = "PERMISSION_DENIED"
	NotADirectory   Code = "NOT_A_DIRECTORY"
	IoError         Code = "IO_ERROR"

	// Transactional
	Aborted Code = "ABORTED"

	Unknown Code = "UNKNOWN"
)

// Error is the structured error carried through the engine. It mirrors
// the teacher's DodotError shape: a stable code, a human message,
// free-form details and an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Details map[string]interface{}
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// New creates a new Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Details: map[string]interface{}{}}
}

// Newf creates a new Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Details: map[string]interface{}{}}
}

// Wrap wraps an existing error under a code and message.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Details: map[string]interface{}{}, Wrapped: err}
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Details: map[string]interface{}{}, Wrapped: err}
}

// WithDetail attaches a detail key/value and returns the receiver.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = map[string]interface{}{}
	}
	e.Details[key] = value
	return e
}

// Of reports whether err carries the given code.
func Of(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, or Unknown if err is not an
// *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Unknown
}

// RollbackOutcome distinguishes a clean rollback, where every applied
// operation reversed cleanly, from a partial one, where at least one
// reversal itself failed.
type RollbackOutcome string

const (
	RollbackClean   RollbackOutcome = "clean"
	RollbackPartial RollbackOutcome = "partial"
)

// NewAborted builds the Aborted{cause, rollback_outcome} error spec §7
// requires: a rolled-back all-or-nothing transaction's caller must be
// able to distinguish a clean reversal from a partial one.
func NewAborted(cause error, outcome RollbackOutcome) *Error {
	e := New(Aborted, "transaction aborted, rollback executed").WithDetail("rollback_outcome", string(outcome))
	if cause != nil {
		e.WithDetail("cause", cause.Error())
		e.Wrapped = cause
	}
	return e
}
